// Package publish commits a repository summary file back to its origin.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"codeessence/internal/workspace"
)

const (
	SummaryFile   = "SUMMARY.md"
	SummaryHeader = "# Repository Summary\n\n"
	CommitMessage = "Add/update repository summary"
	DefaultBranch = "main"

	defaultAuthorName  = "codeessence"
	defaultAuthorEmail = "codeessence@users.noreply.github.com"
)

// PushConflictError reports a rejected push, typically diverged history.
// It is never retried.
type PushConflictError struct {
	Branch string
	Output string
	Err    error
}

func (e *PushConflictError) Error() string {
	return fmt.Sprintf("publish: push to %s rejected: %s", e.Branch, e.Output)
}

func (e *PushConflictError) Unwrap() error { return e.Err }

type Result struct {
	Branch string `json:"branch"`
	File   string `json:"file"`
	// Committed is false when the summary file was already up to date.
	Committed bool `json:"committed"`
}

type Publisher struct {
	Runner workspace.Runner
	// Secrets are masked in every returned error.
	Secrets     []string
	AuthorName  string
	AuthorEmail string
	Logger      *slog.Logger
}

func New(r workspace.Runner, secrets []string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{Runner: r, Secrets: secrets, Logger: logger}
}

// Publish checks out branch, pulls it, writes SummaryFile and, when the
// file changed, commits and pushes it to origin.
func (p *Publisher) Publish(ctx context.Context, ws *workspace.Workspace, branch, text string) (*Result, error) {
	if ws == nil || ws.Root == "" {
		return nil, errors.New("publish: workspace required")
	}
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = DefaultBranch
	}
	res := &Result{Branch: branch, File: SummaryFile}

	if _, err := p.git(ctx, ws.Root, "checkout", branch); err != nil {
		return nil, fmt.Errorf("publish: checkout: %w", err)
	}
	if _, err := p.git(ctx, ws.Root, "pull", "--ff-only", "origin", branch); err != nil {
		return nil, fmt.Errorf("publish: pull: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ws.Root, SummaryFile), []byte(SummaryHeader+text), 0o644); err != nil {
		return nil, fmt.Errorf("publish: write %s: %w", SummaryFile, err)
	}
	if _, err := p.git(ctx, ws.Root, "add", "--", SummaryFile); err != nil {
		return nil, fmt.Errorf("publish: add: %w", err)
	}
	status, err := p.git(ctx, ws.Root, "status", "--porcelain", "--", SummaryFile)
	if err != nil {
		return nil, fmt.Errorf("publish: status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		p.logger().Info("publish: summary unchanged", "repo", ws.RepoURL, "branch", branch)
		return res, nil
	}
	if _, err := p.git(ctx, ws.Root,
		"-c", "user.name="+p.authorName(), "-c", "user.email="+p.authorEmail(),
		"commit", "-m", CommitMessage); err != nil {
		return nil, fmt.Errorf("publish: commit: %w", err)
	}
	res.Committed = true

	if _, err := p.git(ctx, ws.Root, "push", "origin", branch); err != nil {
		var ce *workspace.CommandError
		out := err.Error()
		if errors.As(err, &ce) {
			out = ce.Output
		}
		return nil, &PushConflictError{Branch: branch, Output: out, Err: err}
	}
	p.logger().Info("publish: summary pushed", "repo", ws.RepoURL, "branch", branch)
	return res, nil
}

func (p *Publisher) git(ctx context.Context, dir string, args ...string) (string, error) {
	r := p.Runner
	if r == nil {
		r = workspace.GitRunner{}
	}
	return workspace.Git(ctx, r, dir, p.Secrets, args...)
}

func (p *Publisher) authorName() string {
	if p.AuthorName != "" {
		return p.AuthorName
	}
	return defaultAuthorName
}

func (p *Publisher) authorEmail() string {
	if p.AuthorEmail != "" {
		return p.AuthorEmail
	}
	return defaultAuthorEmail
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
