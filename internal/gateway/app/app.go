package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"codeessence/internal/cache/summary"
	"codeessence/internal/essence"
	"codeessence/internal/gateway/config"
	"codeessence/internal/gateway/handler"
	"codeessence/internal/gateway/server"
	"codeessence/internal/llm"
	"codeessence/internal/pipeline/aggregate"
	"codeessence/internal/publish"
	"codeessence/internal/scan"
	"codeessence/internal/workspace"
)

type App struct {
	server  *server.Server
	closers []io.Closer
}

// New loads configuration from the environment and flags and wires the
// HTTP server.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	svc, closers, err := NewService(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	mux := server.NewMux(handler.NewEssenceHandler(svc, logger), logger)
	return &App{server: server.New(cfg.Port, mux, logger), closers: closers}, nil
}

// NewLogger returns the text logger used by the binaries.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewService is the composition root shared by the server and the CLI.
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*essence.Service, []io.Closer, error) {
	store, storeCloser, err := initSummaryStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var closers []io.Closer
	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}
	cache := summary.New(store, logger)

	summarizer, limiter, err := newSummarizer(ctx, cfg, logger)
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}
	if limiter != nil {
		closers = append(closers, limiter)
	}

	opts := aggregate.DefaultOptions()
	opts.Workers = cfg.Summarize.Workers
	opts.MaxRepoInputBytes = cfg.Summarize.MaxRepoInputBytes

	fetcher := workspace.NewFetcher(cfg.Git.WorkspaceDir, cfg.Git.Token, cfg.Git.Host, logger)
	svc, err := essence.New(essence.Deps{
		Fetcher:    fetcher,
		Aggregator: aggregate.New(summarizer, cache, opts, logger),
		Cache:      cache,
		Publisher:  publish.New(workspace.GitRunner{}, fetcher.Secrets(), logger),
		Scan:       scan.DefaultOptions(),
		Logger:     logger,
	})
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}
	return svc, closers, nil
}

// newSummarizer returns the configured summarizer wrapped in logging,
// retry and rate limiting. The closer stops the limiter and is nil when
// rate limiting is off.
func newSummarizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Summarizer, io.Closer, error) {
	var base llm.Summarizer
	switch cfg.LLM.Provider {
	case "fake":
		logger.Warn("llm: using fake summarizer")
		base = llm.NewFakeSummarizer()
	default:
		g, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("llm: gemini: %w", err)
		}
		logger.Info("llm: ready", "client", g.Name())
		base = g
	}
	limited := llm.RateLimit(cfg.LLM.RPS, cfg.LLM.Burst)(base)
	var limiter io.Closer
	if c, ok := limited.(io.Closer); ok {
		limiter = c
	}
	return llm.Wrap(limited,
		llm.Logging(logger),
		llm.Retry(cfg.LLM.Retries, 500*time.Millisecond),
	), limiter, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	closeAll(a.closers)
	return err
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
