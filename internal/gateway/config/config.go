package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	Git       GitConfig
	LLM       LLMConfig
	Cache     CacheConfig
	Summarize SummarizeConfig
}

type GitConfig struct {
	Token        string
	Host         string
	WorkspaceDir string
}

type LLMConfig struct {
	// Provider is "gemini" or "fake".
	Provider string
	APIKey   string
	Model    string
	RPS      float64
	Burst    int
	Retries  int
}

type CacheConfig struct {
	// Backend is one of memory, disk, postgres, s3.
	Backend     string
	Dir         string
	MaxEntries  int
	PostgresDSN string
	S3          S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SummarizeConfig struct {
	Workers           int
	MaxRepoInputBytes int
}

// Load reads .env and the environment, then the -port flag.
func Load() (*Config, error) {
	port := flag.String("port", "", "server port")
	flag.Parse()

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if *port != "" {
		cfg.Port = normalizePort(*port)
	}
	return cfg, nil
}

// FromEnv reads .env (when present) and the environment only.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")
	level, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Port:     normalizePort(firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), "8081")),
		Env:      env,
		LogLevel: level,
		Git: GitConfig{
			Token:        strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
			Host:         firstNonEmpty(strings.TrimSpace(os.Getenv("GIT_HOST")), "github.com"),
			WorkspaceDir: strings.TrimSpace(os.Getenv("WORKSPACE_DIR")),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), "gemini")),
			APIKey:   firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
			Model:    strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
			RPS:      envFloat("LLM_RPS", 0),
			Burst:    envInt("LLM_BURST", 1),
			Retries:  envInt("LLM_RETRIES", 3),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("CACHE_BACKEND")), "memory")),
			Dir:         firstNonEmpty(strings.TrimSpace(os.Getenv("CACHE_DIR")), ".cache/summaries"),
			MaxEntries:  envInt("CACHE_MAX_ENTRIES", 4096),
			PostgresDSN: strings.TrimSpace(os.Getenv("SUMMARY_CACHE_PG_DSN")),
			S3:          loadS3Config(env),
		},
		Summarize: SummarizeConfig{
			Workers:           envInt("SUMMARY_WORKERS", 4),
			MaxRepoInputBytes: envInt("SUMMARY_MAX_REPO_BYTES", 200_000),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "fake":
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	switch c.Cache.Backend {
	case "memory", "disk":
	case "postgres":
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("config: SUMMARY_CACHE_PG_DSN is required for the postgres cache")
		}
	case "s3":
		if c.Cache.S3.Endpoint == "" {
			return fmt.Errorf("config: SUMMARY_CACHE_S3_ENDPOINT is required for the s3 cache")
		}
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	return nil
}

func loadS3Config(env string) S3Config {
	return S3Config{
		Endpoint:  resolveS3Endpoint(env),
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_BUCKET")), "codeessence-summaries"),
		UseSSL:    resolveS3UseSSL(env),
	}
}

func resolveS3Endpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_ENDPOINT"))
}

func resolveS3UseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("SUMMARY_CACHE_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func parseLevel(raw string) (slog.Level, error) {
	var l slog.Level
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
