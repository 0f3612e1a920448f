// Package aggregate produces file, folder and repository summaries for a
// checked-out repository by walking it, chunking content, and reducing the
// partial summaries through an llm.Summarizer behind the summary cache.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"codeessence/internal/cache/summary"
	"codeessence/internal/chunk"
	"codeessence/internal/llm"
	"codeessence/internal/safeio"
	"codeessence/internal/scan"
	"codeessence/internal/types"
)

const (
	DefaultWorkers           = 4
	DefaultMaxRepoInputBytes = 200_000

	// FailedPrefix starts the placeholder recorded for a unit whose
	// summarization failed.
	FailedPrefix = "[FAILED SUMMARY] "

	maxReduceDepth = 4
)

type Options struct {
	Scan         scan.Options
	ChunkSize    int
	ChunkOverlap int
	// Workers bounds concurrent file units within one run.
	Workers int
	// MaxRepoInputBytes bounds the combined document of a repo summary.
	MaxRepoInputBytes int
}

func DefaultOptions() Options {
	return Options{
		Scan:              scan.DefaultOptions(),
		ChunkSize:         chunk.DefaultMaxSize,
		ChunkOverlap:      chunk.DefaultOverlap,
		Workers:           DefaultWorkers,
		MaxRepoInputBytes: DefaultMaxRepoInputBytes,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = min(d.ChunkOverlap, o.ChunkSize/2)
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.MaxRepoInputBytes <= 0 {
		o.MaxRepoInputBytes = d.MaxRepoInputBytes
	}
	if o.Scan.IgnoreDirs == nil && o.Scan.IgnoreFiles == nil && o.Scan.AllowedTypes == nil {
		o.Scan = d.Scan
	}
	return o
}

// UnitResult is the outcome of one file. Err is nil for a summarized unit,
// a *scan.FileAccessError for a skipped one and a *llm.SummarizationError
// for one that holds a placeholder summary.
type UnitResult struct {
	Path    string
	Summary string
	Err     error
}

// Result holds the output of one Aggregate call. Exactly one of Files,
// Folders or Repo is populated, according to Granularity.
type Result struct {
	Granularity types.Granularity
	Files       map[string]string
	Folders     map[string]map[string]string
	Repo        string
	// Truncated reports that the repo document hit MaxRepoInputBytes.
	Truncated bool
	Failures  []UnitResult
}

// Summaries returns the populated output for the result's granularity.
func (r *Result) Summaries() any {
	switch r.Granularity {
	case types.GranularityFile:
		return r.Files
	case types.GranularityFolder:
		return r.Folders
	default:
		return r.Repo
	}
}

// Aggregator is safe for concurrent use; one instance serves every
// operation of a process so concurrent requests for the same key share a
// single summarizer run.
type Aggregator struct {
	summarizer llm.Summarizer
	cache      *summary.Cache
	opts       Options
	log        *slog.Logger
	flight     singleflight.Group
}

func New(s llm.Summarizer, cache *summary.Cache, opts Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{summarizer: s, cache: cache, opts: opts.normalized(), log: logger}
}

// Aggregate summarizes the tree at root, identified as repoID in the cache.
// Unit failures are collected in Result.Failures; only an invalid
// granularity, an unusable root or a done context return an error.
func (a *Aggregator) Aggregate(ctx context.Context, repoID, root string, g types.Granularity) (*Result, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("aggregate: invalid granularity %q", g)
	}
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, fmt.Errorf("aggregate: open workspace: %w", err)
	}
	run := &run{a: a, repoID: repoID, fsys: fsys, g: g}

	res := &Result{Granularity: g}
	switch g {
	case types.GranularityRepo:
		err = run.repo(ctx, res)
	default:
		err = run.files(ctx, res)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Path < res.Failures[j].Path })
	return res, nil
}

type run struct {
	a      *Aggregator
	repoID string
	fsys   *safeio.SafeFS
	g      types.Granularity
}

func (r *run) files(ctx context.Context, res *Result) error {
	var (
		mu    sync.Mutex
		units []UnitResult
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.a.opts.Workers)
	for entry := range scan.Walk(r.fsys.Root(), scan.Restricted, r.a.opts.Scan) {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			u := r.fileUnit(egCtx, entry)
			mu.Lock()
			units = append(units, u)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.g == types.GranularityFolder {
		res.Folders = map[string]map[string]string{}
	} else {
		res.Files = map[string]string{}
	}
	for _, u := range units {
		if u.Err != nil {
			res.Failures = append(res.Failures, u)
		}
		if u.Summary == "" {
			continue
		}
		if res.Folders != nil {
			e := scan.FileEntry{Path: u.Path}
			dir := res.Folders[e.Dir()]
			if dir == nil {
				dir = map[string]string{}
				res.Folders[e.Dir()] = dir
			}
			dir[e.Name()] = u.Summary
		} else {
			res.Files[u.Path] = u.Summary
		}
	}
	return nil
}

// fileUnit summarizes one entry. Concurrent calls for the same cache key
// collapse into one computation.
func (r *run) fileUnit(ctx context.Context, entry scan.FileEntry) UnitResult {
	key := summary.Key(r.repoID, entry.Path, r.g)
	v, err := r.a.shared(ctx, key, func(ctx context.Context) (string, error) {
		if s, ok := r.a.cache.Get(ctx, r.repoID, entry.Path, r.g); ok {
			return s, nil
		}
		content, err := r.fsys.ReadText(entry.Path)
		if err != nil {
			return "", &scan.FileAccessError{Path: entry.Path, Err: err}
		}
		s, err := r.a.summarizeText(ctx, content, entry.TypeTag)
		if err != nil {
			return "", err
		}
		if s != "" {
			r.a.cache.Set(ctx, r.repoID, entry.Path, r.g, s)
		}
		return s, nil
	})
	if err != nil {
		var accessErr *scan.FileAccessError
		if errors.As(err, &accessErr) {
			r.a.log.Debug("aggregate: skip unreadable file", "path", entry.Path, "error", err)
			return UnitResult{Path: entry.Path, Err: err}
		}
		r.a.log.Warn("aggregate: summarize failed", "path", entry.Path, "error", err)
		return UnitResult{Path: entry.Path, Summary: FailedPrefix + entry.Name(), Err: err}
	}
	return UnitResult{Path: entry.Path, Summary: v}
}

// shared runs fn once per key across concurrent callers. fn ignores the
// cancellation of the caller that started it; each caller still returns
// when its own ctx is done.
func (a *Aggregator) shared(ctx context.Context, key string, fn func(context.Context) (string, error)) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := a.flight.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
