// Package essence exposes the repository analysis operations: summaries,
// health, structure listing, dependency graph and summary publishing.
// Every operation fetches its own workspace and removes it on return.
package essence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeessence/internal/cache/summary"
	"codeessence/internal/depgraph"
	"codeessence/internal/health"
	"codeessence/internal/pipeline/aggregate"
	"codeessence/internal/publish"
	"codeessence/internal/safeio"
	"codeessence/internal/scan"
	"codeessence/internal/types"
	"codeessence/internal/workspace"
)

var (
	// ErrInvalidArgument marks a request rejected before any work started.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFileNotFound    = errors.New("file not found")
	// ErrSummaryUnavailable is returned by PublishSummary when the
	// repository summary could not be produced.
	ErrSummaryUnavailable = errors.New("repository summary unavailable")
)

// Fetcher materializes a repository into a workspace owned by the caller.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL string, opts workspace.FetchOptions) (*workspace.Workspace, error)
}

type Deps struct {
	Fetcher    Fetcher
	Aggregator *aggregate.Aggregator
	// Cache is only used for explicit invalidation; the aggregator holds
	// its own reference.
	Cache     *summary.Cache
	Publisher *publish.Publisher
	Scan      scan.Options
	Logger    *slog.Logger
}

type Service struct {
	fetcher   Fetcher
	agg       *aggregate.Aggregator
	cache     *summary.Cache
	publisher *publish.Publisher
	scan      scan.Options
	log       *slog.Logger
}

func New(d Deps) (*Service, error) {
	if d.Fetcher == nil {
		return nil, errors.New("essence: fetcher required")
	}
	if d.Aggregator == nil {
		return nil, errors.New("essence: aggregator required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = publish.New(nil, nil, d.Logger)
	}
	if d.Scan.IgnoreDirs == nil && d.Scan.IgnoreFiles == nil && d.Scan.AllowedTypes == nil {
		d.Scan = scan.DefaultOptions()
	}
	return &Service{
		fetcher:   d.Fetcher,
		agg:       d.Aggregator,
		cache:     d.Cache,
		publisher: d.Publisher,
		scan:      d.Scan,
		log:       d.Logger,
	}, nil
}

type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type SummaryResponse struct {
	RepoURL     string            `json:"repo_url"`
	Granularity types.Granularity `json:"granularity"`
	// Summaries is map[path]string for file, map[dir]map[name]string for
	// folder and a string for repo.
	Summaries any       `json:"summaries"`
	Truncated bool      `json:"truncated,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
}

// SummarizeRepository summarizes repoURL at granularity g.
func (s *Service) SummarizeRepository(ctx context.Context, repoURL string, g types.Granularity) (*SummaryResponse, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: granularity %q", ErrInvalidArgument, g)
	}
	var out *SummaryResponse
	err := s.withWorkspace(ctx, "summarize", repoURL, workspace.ShallowOptions(), func(op operation) error {
		res, err := s.agg.Aggregate(ctx, op.repoID, op.ws.Root, g)
		if err != nil {
			return err
		}
		out = &SummaryResponse{
			RepoURL:     repoURL,
			Granularity: g,
			Summaries:   res.Summaries(),
			Truncated:   res.Truncated,
			Failures:    failures(res.Failures),
		}
		op.log.Info("essence: summarized", "granularity", g, "failures", len(res.Failures))
		return nil
	})
	return out, err
}

func (s *Service) CheckHealth(ctx context.Context, repoURL string) (*health.Report, error) {
	var out *health.Report
	err := s.withWorkspace(ctx, "health", repoURL, workspace.ShallowOptions(), func(op operation) error {
		rep, err := health.Score(op.ws.Root)
		out = rep
		return err
	})
	return out, err
}

// ListStructure returns every non-infrastructure file path of repoURL.
func (s *Service) ListStructure(ctx context.Context, repoURL string) ([]string, error) {
	var out []string
	err := s.withWorkspace(ctx, "structure", repoURL, workspace.ShallowOptions(), func(op operation) error {
		out = scan.ListPaths(op.ws.Root, s.scan)
		return nil
	})
	return out, err
}

func (s *Service) BuildDependencyGraph(ctx context.Context, repoURL string) (*depgraph.Graph, error) {
	var out *depgraph.Graph
	err := s.withWorkspace(ctx, "depgraph", repoURL, workspace.ShallowOptions(), func(op operation) error {
		g, err := depgraph.NewBuilder(s.scan, op.log).Build(op.ws.Root)
		out = g
		return err
	})
	return out, err
}

// PublishSummary writes the repository summary of repoURL into
// publish.SummaryFile on branch and pushes it. branch defaults to main.
func (s *Service) PublishSummary(ctx context.Context, repoURL, branch string) (*publish.Result, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = publish.DefaultBranch
	}
	var out *publish.Result
	err := s.withWorkspace(ctx, "publish", repoURL, workspace.FetchOptions{Branch: branch}, func(op operation) error {
		res, err := s.agg.Aggregate(ctx, op.repoID, op.ws.Root, types.GranularityRepo)
		if err != nil {
			return err
		}
		for _, f := range res.Failures {
			if f.Path == summary.RepoSentinel {
				return fmt.Errorf("%w: %v", ErrSummaryUnavailable, f.Err)
			}
		}
		pub, err := s.publisher.Publish(ctx, op.ws, branch, res.Repo)
		out = pub
		return err
	})
	return out, err
}

// SummarizeSnippet summarizes code directly; language is a type tag and
// defaults to "py".
func (s *Service) SummarizeSnippet(ctx context.Context, code, language string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: code is required", ErrInvalidArgument)
	}
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = "py"
	}
	return s.agg.SummarizeText(ctx, code, language)
}

// SummarizeFile summarizes one file of repoURL.
func (s *Service) SummarizeFile(ctx context.Context, repoURL, fileName string) (string, error) {
	if cleanRel(fileName) == "" {
		return "", fmt.Errorf("%w: file name is required", ErrInvalidArgument)
	}
	var out string
	err := s.withWorkspace(ctx, "summarize_file", repoURL, workspace.ShallowOptions(), func(op operation) error {
		rel := cleanRel(fileName)
		fsys, err := safeio.NewSafeFS(op.ws.Root)
		if err != nil {
			return err
		}
		info, err := fsys.SafeStat(filepath.FromSlash(rel))
		if err != nil || info.IsDir() {
			if err == nil || errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, rel)
			}
			return err
		}
		u, err := s.agg.File(ctx, op.repoID, op.ws.Root, rel)
		if err != nil {
			return err
		}
		if u.Err != nil {
			return u.Err
		}
		out = u.Summary
		return nil
	})
	return out, err
}

// InvalidateCache drops every cached summary of repoURL.
func (s *Service) InvalidateCache(ctx context.Context, repoURL string) error {
	id, err := repoIdentity(repoURL)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

type operation struct {
	ws     *workspace.Workspace
	repoID string
	log    *slog.Logger
}

// withWorkspace fetches repoURL, runs fn and removes the workspace on every
// exit path.
func (s *Service) withWorkspace(ctx context.Context, name, repoURL string, opts workspace.FetchOptions, fn func(operation) error) error {
	repoID, err := repoIdentity(repoURL)
	if err != nil {
		return err
	}
	log := s.log.With("op", name, "op_id", uuid.NewString(), "repo", repoID)
	start := time.Now()

	ws, err := s.fetcher.Fetch(ctx, strings.TrimSpace(repoURL), opts)
	if err != nil {
		log.Warn("essence: fetch failed", "error", err)
		return err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warn("essence: workspace cleanup failed", "dir", ws.Root, "error", cerr)
		}
	}()

	err = fn(operation{ws: ws, repoID: repoID, log: log})
	if err != nil {
		log.Warn("essence: operation failed", "error", err, "took", time.Since(start))
		return err
	}
	log.Debug("essence: operation done", "took", time.Since(start))
	return nil
}

func repoIdentity(repoURL string) (string, error) {
	if strings.TrimSpace(repoURL) == "" {
		return "", fmt.Errorf("%w: repository url is required", ErrInvalidArgument)
	}
	id, err := workspace.RepoIdentity(repoURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return id, nil
}

// cleanRel confines a user supplied path to the workspace root.
func cleanRel(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func failures(units []aggregate.UnitResult) []Failure {
	if len(units) == 0 {
		return nil
	}
	out := make([]Failure, 0, len(units))
	for _, u := range units {
		out = append(out, Failure{Path: u.Path, Error: u.Err.Error()})
	}
	return out
}
