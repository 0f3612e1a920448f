package app

import (
	"fmt"
	"io"
	"log/slog"

	"codeessence/internal/cache/disk"
	"codeessence/internal/cache/memory"
	"codeessence/internal/cache/summary"
	"codeessence/internal/gateway/config"
	summaryrepo "codeessence/internal/gateway/repository/summary"
)

// initSummaryStore builds the configured cache backend. Remote backends
// are fronted by the in-process LRU. The returned closer releases the
// backend's connections and may be nil.
func initSummaryStore(cfg *config.Config, logger *slog.Logger) (summary.Store, io.Closer, error) {
	front, err := memory.NewStore(cfg.Cache.MaxEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("summary cache: memory: %w", err)
	}

	switch cfg.Cache.Backend {
	case "memory":
		logger.Info("summary cache: memory", "max_entries", cfg.Cache.MaxEntries)
		return front, nil, nil
	case "disk":
		store, err := disk.NewStore(disk.Config{Root: cfg.Cache.Dir, MaxEntries: cfg.Cache.MaxEntries})
		if err != nil {
			return nil, nil, fmt.Errorf("summary cache: disk: %w", err)
		}
		logger.Info("summary cache: disk", "dir", cfg.Cache.Dir, "entries", store.Len())
		return summary.NewLayered(front, store), nil, nil
	case "postgres":
		store, err := summaryrepo.NewPostgresStore(cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("summary cache: postgres: %w", err)
		}
		logger.Info("summary cache: postgres")
		return summary.NewLayered(front, store), store, nil
	case "s3":
		s3 := cfg.Cache.S3
		store, err := summaryrepo.NewS3Store(summaryrepo.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("summary cache: s3: %w", err)
		}
		logger.Info("summary cache: s3", "bucket", s3.Bucket, "endpoint", s3.Endpoint)
		return summary.NewLayered(front, store), nil, nil
	default:
		return nil, nil, fmt.Errorf("summary cache: unknown backend %q", cfg.Cache.Backend)
	}
}
