// Package workspace materializes remote repositories into exclusively owned
// temporary directories.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FetchOptions tune a single clone.
type FetchOptions struct {
	// Branch to check out; empty uses the remote default.
	Branch string
	// Depth of the clone history; 0 clones the full history.
	Depth int
}

// ShallowOptions is the default for read-only analysis.
func ShallowOptions() FetchOptions { return FetchOptions{Depth: 1} }

// Workspace is a local checkout owned by exactly one operation.
type Workspace struct {
	Root    string
	RepoURL string
	Branch  string

	closeOnce sync.Once
	closeErr  error
}

// Close removes the checkout recursively. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		if w.Root != "" {
			w.closeErr = os.RemoveAll(w.Root)
		}
	})
	return w.closeErr
}

// FetchError reports a clone that did not produce a workspace.
type FetchError struct {
	RepoURL string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("workspace: fetch %s: %v", e.RepoURL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher clones repositories with git.
type Fetcher struct {
	// BaseDir holds the temporary checkouts; empty uses os.TempDir.
	BaseDir string
	// Token is injected into https URLs on GitHost.
	Token   string
	GitHost string
	Runner  Runner
	Logger  *slog.Logger
}

// NewFetcher returns a Fetcher backed by the git binary.
func NewFetcher(baseDir, token, host string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		BaseDir: baseDir,
		Token:   token,
		GitHost: host,
		Runner:  GitRunner{},
		Logger:  logger,
	}
}

// Fetch clones repoURL into a fresh directory. On failure the directory is
// already gone and the error is a *FetchError; on success the caller owns
// the Workspace and must Close it.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string, opts FetchOptions) (*Workspace, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return nil, &FetchError{Err: errors.New("repository url required")}
	}
	if opts.Depth < 0 {
		return nil, &FetchError{RepoURL: repoURL, Err: errors.New("depth must be >= 0")}
	}
	if f.BaseDir != "" {
		if err := os.MkdirAll(f.BaseDir, 0o755); err != nil {
			return nil, &FetchError{RepoURL: repoURL, Err: fmt.Errorf("mkdir base dir: %w", err)}
		}
	}
	dir, err := os.MkdirTemp(f.BaseDir, "essence-*")
	if err != nil {
		return nil, &FetchError{RepoURL: repoURL, Err: fmt.Errorf("create workspace: %w", err)}
	}

	args := []string{"clone"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if b := strings.TrimSpace(opts.Branch); b != "" {
		args = append(args, "--branch", b, "--single-branch")
	}
	args = append(args, "--", InjectToken(repoURL, f.Token, f.GitHost), dir)

	if _, err := Git(ctx, f.runner(), "", f.secrets(), args...); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			f.logger().Warn("workspace: cleanup failed", "dir", dir, "error", rmErr)
		}
		return nil, &FetchError{RepoURL: repoURL, Err: err}
	}
	f.logger().Debug("workspace: cloned", "repo", repoURL, "dir", dir, "branch", opts.Branch, "depth", opts.Depth)
	return &Workspace{Root: dir, RepoURL: repoURL, Branch: opts.Branch}, nil
}

// Secrets lists the values that must never reach logs or errors.
func (f *Fetcher) Secrets() []string { return f.secrets() }

func (f *Fetcher) secrets() []string {
	if t := strings.TrimSpace(f.Token); t != "" {
		return []string{t}
	}
	return nil
}

func (f *Fetcher) runner() Runner {
	if f.Runner == nil {
		return GitRunner{}
	}
	return f.Runner
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}
