package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	defaultMaxEntries = 10000
	indexFile         = "index.json"
)

type Config struct {
	Root       string
	MaxEntries int
}

// indexEntry is one line of the persisted recency order, oldest first.
type indexEntry struct {
	Key  string `json:"key"`
	File string `json:"file"`
}

type diskIndex struct {
	Entries []indexEntry `json:"entries"`
}

// Store persists values as files under Root/data. Recency lives in an
// in-memory LRU that is written to Root/index.json after every change, so
// a new Store over the same Root resumes with the same eviction order.
// Evicted and deleted entries lose their file.
type Store struct {
	mu sync.Mutex

	dataDir   string
	indexPath string
	lru       *simplelru.LRU[string, string] // key -> data file name
}

func NewStore(cfg Config) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("disk cache: root is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	s := &Store{
		dataDir:   filepath.Join(root, "data"),
		indexPath: filepath.Join(root, indexFile),
	}
	lru, err := simplelru.NewLRU[string, string](cfg.MaxEntries, func(_ string, file string) {
		_ = os.Remove(filepath.Join(s.dataDir, file))
	})
	if err != nil {
		return nil, err
	}
	s.lru = lru
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	if err := s.persistIndexLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("disk cache: store is nil")
	}
	if strings.TrimSpace(key) == "" {
		return nil, false, fmt.Errorf("disk cache: key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	raw, err := os.ReadFile(filepath.Join(s.dataDir, file))
	if err != nil {
		if os.IsNotExist(err) {
			s.lru.Remove(key)
			_ = s.persistIndexLocked()
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := s.persistIndexLocked(); err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if s == nil {
		return fmt.Errorf("disk cache: store is nil")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("disk cache: key is required")
	}
	file := hashedName(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(filepath.Join(s.dataDir, file), value); err != nil {
		return err
	}
	s.lru.Add(key, file)
	return s.persistIndexLocked()
}

func (s *Store) DeletePrefix(_ context.Context, prefix string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for _, key := range s.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.lru.Remove(key)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return s.persistIndexLocked()
}

// Len reports the number of indexed entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// loadIndex replays the persisted order; entries whose file is gone are
// dropped. Replaying past MaxEntries evicts the oldest.
func (s *Store) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("disk cache: corrupt index %s: %w", s.indexPath, err)
	}
	for _, e := range idx.Entries {
		if e.Key == "" || e.File == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dataDir, e.File)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		s.lru.Add(e.Key, e.File)
	}
	return nil
}

func (s *Store) persistIndexLocked() error {
	keys := s.lru.Keys()
	idx := diskIndex{Entries: make([]indexEntry, 0, len(keys))}
	for _, k := range keys {
		if file, ok := s.lru.Peek(k); ok {
			idx.Entries = append(idx.Entries, indexEntry{Key: k, File: file})
		}
	}
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath, raw)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hashedName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".bin"
}
