package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeessence/internal/cache/memory"
	"codeessence/internal/cache/summary"
	"codeessence/internal/gateway/config"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel: slog.LevelError,
		Git:      config.GitConfig{Host: "github.com", WorkspaceDir: t.TempDir()},
		LLM:      config.LLMConfig{Provider: "fake", Retries: 1},
		Cache:    config.CacheConfig{Backend: backend, Dir: t.TempDir(), MaxEntries: 16},
		Summarize: config.SummarizeConfig{
			Workers:           2,
			MaxRepoInputBytes: 1000,
		},
	}
}

func TestInitSummaryStoreMemory(t *testing.T) {
	store, closer, err := initSummaryStore(testConfig(t, "memory"), slog.Default())
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &memory.Store{}, store)
}

func TestInitSummaryStoreDiskIsLayered(t *testing.T) {
	cfg := testConfig(t, "disk")
	store, _, err := initSummaryStore(cfg, slog.Default())
	require.NoError(t, err)
	layered, ok := store.(*summary.Layered)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, layered.Set(ctx, "summary:file:repo:a.py", []byte("x")))
	assert.Equal(t, int64(1), layered.Metrics().OriginWrites)

	// a fresh process sees the persisted entry
	again, _, err := initSummaryStore(cfg, slog.Default())
	require.NoError(t, err)
	v, ok, err := again.Get(ctx, "summary:file:repo:a.py")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", string(v))
}

func TestInitSummaryStoreUnknownBackend(t *testing.T) {
	_, _, err := initSummaryStore(testConfig(t, "redis"), slog.Default())
	assert.Error(t, err)
}

func TestNewServiceWithFakeProvider(t *testing.T) {
	svc, closers, err := NewService(context.Background(), testConfig(t, "memory"), slog.Default())
	require.NoError(t, err)
	assert.Empty(t, closers)

	s, err := svc.SummarizeSnippet(context.Background(), "print(1)", "py")
	require.NoError(t, err)
	assert.Contains(t, s, "[py]")
}

func TestNewServiceReturnsRateLimiterCloser(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.LLM.RPS = 5
	cfg.LLM.Burst = 2

	svc, closers, err := NewService(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	require.Len(t, closers, 1)

	s, err := svc.SummarizeSnippet(context.Background(), "print(1)", "py")
	require.NoError(t, err)
	assert.Contains(t, s, "[py]")
	for _, c := range closers {
		assert.NoError(t, c.Close())
	}
}
