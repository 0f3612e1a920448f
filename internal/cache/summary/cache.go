// Package summary implements the summarization cache: a key/value store
// from (repository identity, logical path, granularity) to summary text.
package summary

import (
	"context"
	"log/slog"
	"strings"

	"codeessence/internal/types"
)

// RepoSentinel is the logical path repo-level summaries are cached under.
const RepoSentinel = "__repo__"

// Cache maps (repoID, path, granularity) to a previously computed summary.
// Backend failures never reach callers: a failing Get is a miss and a
// failing Set is dropped, both logged.
type Cache struct {
	store Store
	log   *slog.Logger
}

func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, log: logger}
}

// Key renders the backend key for one summary record.
func Key(repoID, path string, g types.Granularity) string {
	return repoPrefix(g, repoID) + strings.TrimSpace(path)
}

func repoPrefix(g types.Granularity, repoID string) string {
	return "summary:" + string(g) + ":" + strings.TrimSpace(repoID) + ":"
}

func (c *Cache) Get(ctx context.Context, repoID, path string, g types.Granularity) (string, bool) {
	if c == nil || c.store == nil {
		return "", false
	}
	key := Key(repoID, path, g)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("summary cache: get failed, treating as miss", "key", key, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return string(raw), true
}

func (c *Cache) Set(ctx context.Context, repoID, path string, g types.Granularity, summary string) {
	if c == nil || c.store == nil {
		return
	}
	key := Key(repoID, path, g)
	if err := c.store.Set(ctx, key, []byte(summary)); err != nil {
		c.log.Warn("summary cache: set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached summary of one repository, at all granularities.
func (c *Cache) Invalidate(ctx context.Context, repoID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	for _, g := range []types.Granularity{types.GranularityFile, types.GranularityFolder, types.GranularityRepo} {
		if err := c.store.DeletePrefix(ctx, repoPrefix(g, repoID)); err != nil {
			return err
		}
	}
	return nil
}
