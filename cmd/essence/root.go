package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codeessence/internal/depgraph"
	"codeessence/internal/essence"
	"codeessence/internal/gateway/app"
	"codeessence/internal/gateway/config"
	"codeessence/internal/health"
	"codeessence/internal/publish"
	"codeessence/internal/types"
)

// rootFlags override values loaded from the environment.
type rootFlags struct {
	provider string
	backend  string
	workers  int
	timeout  time.Duration
	verbose  bool
}

// serviceFactory builds the service for one command run. Tests replace it.
type serviceFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (analyzer, func(), error)

// analyzer is the subset of the service the CLI drives.
type analyzer interface {
	SummarizeRepository(ctx context.Context, repoURL string, g types.Granularity) (*essence.SummaryResponse, error)
	CheckHealth(ctx context.Context, repoURL string) (*health.Report, error)
	ListStructure(ctx context.Context, repoURL string) ([]string, error)
	BuildDependencyGraph(ctx context.Context, repoURL string) (*depgraph.Graph, error)
	PublishSummary(ctx context.Context, repoURL, branch string) (*publish.Result, error)
	SummarizeSnippet(ctx context.Context, code, language string) (string, error)
	SummarizeFile(ctx context.Context, repoURL, fileName string) (string, error)
	InvalidateCache(ctx context.Context, repoURL string) error
}

func newRootCmd(out io.Writer) *cobra.Command {
	return newRootCmdWith(out, defaultFactory)
}

func newRootCmdWith(out io.Writer, factory serviceFactory) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "essence",
		Short:        "Summarize, score and map source repositories.",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.provider, "llm", "", "summarizer provider (gemini, fake); default from LLM_PROVIDER")
	pf.StringVar(&flags.backend, "cache", "", "summary cache backend (memory, disk, postgres, s3); default from CACHE_BACKEND")
	pf.IntVar(&flags.workers, "workers", 0, "concurrent file summaries; default from SUMMARY_WORKERS")
	pf.DurationVar(&flags.timeout, "timeout", 10*time.Minute, "overall deadline for the command")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	// run wraps a command body with config loading, service construction
	// and the deadline.
	run := func(body func(ctx context.Context, svc analyzer, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := app.NewLogger(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			svc, closeFn, err := factory(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := body(ctx, svc, args)
			if err != nil {
				return err
			}
			return writeJSON(out, v)
		}
	}

	var level string
	summarizeCmd := &cobra.Command{
		Use:   "summarize <repo-url>",
		Short: "Summarize a repository at file, folder or repo granularity",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			g, err := types.ParseGranularity(level)
			if err != nil {
				return nil, err
			}
			return svc.SummarizeRepository(ctx, args[0], g)
		}),
	}
	summarizeCmd.Flags().StringVarP(&level, "level", "l", string(types.GranularityRepo), "granularity: file, folder or repo")

	healthCmd := &cobra.Command{
		Use:   "health <repo-url>",
		Short: "Score the structural health of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			return svc.CheckHealth(ctx, args[0])
		}),
	}

	structureCmd := &cobra.Command{
		Use:   "structure <repo-url>",
		Short: "List every file path in a repository",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			paths, err := svc.ListStructure(ctx, args[0])
			if err != nil {
				return nil, err
			}
			return map[string]any{"structure": paths}, nil
		}),
	}

	graphCmd := &cobra.Command{
		Use:   "graph <repo-url>",
		Short: "Build the dependency graph from package manifests",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			return svc.BuildDependencyGraph(ctx, args[0])
		}),
	}

	var branch string
	publishCmd := &cobra.Command{
		Use:   "publish <repo-url>",
		Short: "Commit the repository summary as SUMMARY.md and push it",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			return svc.PublishSummary(ctx, args[0], branch)
		}),
	}
	publishCmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to commit to")

	var language, snippetFile string
	snippetCmd := &cobra.Command{
		Use:   "snippet [code]",
		Short: "Summarize a code snippet given inline, from --file or on stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			code, err := snippetSource(args, snippetFile, os.Stdin)
			if err != nil {
				return nil, err
			}
			s, err := svc.SummarizeSnippet(ctx, code, language)
			if err != nil {
				return nil, err
			}
			return map[string]string{"summary": s}, nil
		}),
	}
	snippetCmd.Flags().StringVar(&language, "lang", "py", "language hint")
	snippetCmd.Flags().StringVarP(&snippetFile, "file", "f", "", "read the snippet from a file")

	fileCmd := &cobra.Command{
		Use:   "file <repo-url> <path>",
		Short: "Summarize one file of a repository",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			s, err := svc.SummarizeFile(ctx, args[0], args[1])
			if err != nil {
				return nil, err
			}
			return map[string]string{"file": args[1], "summary": s}, nil
		}),
	}

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <repo-url>",
		Short: "Drop every cached summary of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, svc analyzer, args []string) (any, error) {
			if err := svc.InvalidateCache(ctx, args[0]); err != nil {
				return nil, err
			}
			return map[string]any{"invalidated": args[0]}, nil
		}),
	}

	root.AddCommand(summarizeCmd, healthCmd, structureCmd, graphCmd, publishCmd, snippetCmd, fileCmd, invalidateCmd)
	return root
}

func (f *rootFlags) apply(cfg *config.Config) {
	if f.provider != "" {
		cfg.LLM.Provider = f.provider
	}
	if f.backend != "" {
		cfg.Cache.Backend = f.backend
	}
	if f.workers > 0 {
		cfg.Summarize.Workers = f.workers
	}
	if f.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
}

func snippetSource(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func defaultFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (analyzer, func(), error) {
	svc, closers, err := app.NewService(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}, nil
}
