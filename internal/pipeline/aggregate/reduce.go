package aggregate

import (
	"context"
	"strings"
	"unicode/utf8"

	"codeessence/internal/cache/summary"
	"codeessence/internal/chunk"
	"codeessence/internal/llm"
	"codeessence/internal/scan"
	"codeessence/internal/types"
)

const partSeparator = "\n\n"

// summarizeText maps every chunk of content through the summarizer and
// reduces the partials to one summary. Empty content yields "".
func (a *Aggregator) summarizeText(ctx context.Context, content, typeHint string) (string, error) {
	parts, err := a.mapChunks(ctx, content, typeHint)
	if err != nil || len(parts) == 0 {
		return "", err
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return a.reduce(ctx, parts, llm.HintCombine, 0)
}

func (a *Aggregator) mapChunks(ctx context.Context, content, typeHint string) ([]string, error) {
	chunks, err := chunk.Split(content, a.opts.ChunkSize, a.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		s, err := a.call(ctx, c, typeHint)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return parts, nil
}

// reduce merges partial summaries with finalHint. Partials that do not fit
// one chunk are first combined chunk by chunk, recursively.
func (a *Aggregator) reduce(ctx context.Context, parts []string, finalHint string, depth int) (string, error) {
	joined := strings.Join(parts, partSeparator)
	if utf8.RuneCountInString(joined) <= a.opts.ChunkSize || depth >= maxReduceDepth {
		if depth >= maxReduceDepth {
			joined = truncateRunes(joined, a.opts.ChunkSize)
		}
		return a.call(ctx, joined, finalHint)
	}
	next, err := a.mapChunks(ctx, joined, llm.HintCombine)
	if err != nil {
		return "", err
	}
	if len(next) == 1 {
		return a.call(ctx, next[0], finalHint)
	}
	return a.reduce(ctx, next, finalHint, depth+1)
}

func (a *Aggregator) call(ctx context.Context, content, typeHint string) (string, error) {
	out, err := a.summarizer.Summarize(ctx, content, typeHint)
	if err != nil {
		return "", &llm.SummarizationError{TypeHint: typeHint, Err: err}
	}
	return strings.TrimSpace(out), nil
}

// repo concatenates every admitted file, bounded by MaxRepoInputBytes, and
// reduces the document once with the repository prompt.
func (r *run) repo(ctx context.Context, res *Result) error {
	if s, ok := r.a.cache.Get(ctx, r.repoID, summary.RepoSentinel, types.GranularityRepo); ok {
		res.Repo = s
		return nil
	}

	doc, truncated, failures := r.document()
	res.Truncated = truncated
	res.Failures = append(res.Failures, failures...)
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == "" {
		return nil
	}
	if truncated {
		r.a.log.Info("aggregate: repository input truncated", "repo", r.repoID, "limit_bytes", r.a.opts.MaxRepoInputBytes)
	}

	v, err := r.a.shared(ctx, summary.Key(r.repoID, summary.RepoSentinel, types.GranularityRepo), func(ctx context.Context) (string, error) {
		s, err := r.a.summarizeRepo(ctx, doc)
		if err != nil {
			return "", err
		}
		r.a.cache.Set(ctx, r.repoID, summary.RepoSentinel, types.GranularityRepo, s)
		return s, nil
	})
	if err != nil {
		r.a.log.Warn("aggregate: repository summary failed", "repo", r.repoID, "error", err)
		res.Repo = FailedPrefix + "repository"
		res.Failures = append(res.Failures, UnitResult{Path: summary.RepoSentinel, Summary: res.Repo, Err: err})
		return nil
	}
	res.Repo = v
	return nil
}

func (a *Aggregator) summarizeRepo(ctx context.Context, doc string) (string, error) {
	chunks, err := chunk.Split(doc, a.opts.ChunkSize, a.opts.ChunkOverlap)
	if err != nil {
		return "", err
	}
	if len(chunks) == 1 {
		return a.call(ctx, chunks[0], llm.HintRepo)
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		s, err := a.call(ctx, c, "")
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return a.reduce(ctx, parts, llm.HintRepo, 0)
}

// document builds the combined repository text in walk order.
func (r *run) document() (string, bool, []UnitResult) {
	limit := r.a.opts.MaxRepoInputBytes
	var (
		b        strings.Builder
		failures []UnitResult
	)
	for entry := range scan.Walk(r.fsys.Root(), scan.Restricted, r.a.opts.Scan) {
		content, err := r.fsys.ReadText(entry.Path)
		if err != nil {
			failures = append(failures, UnitResult{Path: entry.Path, Err: &scan.FileAccessError{Path: entry.Path, Err: err}})
			continue
		}
		if content == "" {
			continue
		}
		piece := content + "\n"
		if room := limit - b.Len(); len(piece) > room {
			b.WriteString(truncateBytes(piece, room))
			return b.String(), true, failures
		}
		b.WriteString(piece)
	}
	return b.String(), false, failures
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
