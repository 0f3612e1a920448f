package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps summaries in a single summary_cache table.
// Upserts make each key's write atomic.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS summary_cache (
  cache_key TEXT PRIMARY KEY,
  summary TEXT NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM summary_cache WHERE cache_key = $1`, key).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(summary), true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO summary_cache (cache_key, summary, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (cache_key) DO UPDATE SET summary = EXCLUDED.summary, updated_at = NOW()`, key, string(value))
	return err
}

func (s *PostgresStore) DeletePrefix(ctx context.Context, prefix string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE starts_with(cache_key, $1)`, prefix)
	return err
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
