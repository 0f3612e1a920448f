package memory

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMaxEntries = 4096

// Store is a process-local, size-bounded byte store. Entries never expire;
// only capacity pressure evicts the least recently used key.
type Store struct {
	cache *lru.Cache[string, []byte]
}

func NewStore(maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c, err := lru.New[string, []byte](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Store{cache: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	raw, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if s == nil {
		return nil
	}
	s.cache.Add(key, append([]byte(nil), value...))
	return nil
}

func (s *Store) DeletePrefix(_ context.Context, prefix string) error {
	if s == nil {
		return nil
	}
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
	return nil
}
