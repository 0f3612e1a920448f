package summary

import "context"

// Store is the byte-level key/value contract every summary backend meets.
// Implementations must be safe for concurrent use and atomic per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	DeletePrefix(ctx context.Context, prefix string) error
}
