package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, root string, maxEntries int) *Store {
	t.Helper()
	store, err := NewStore(Config{Root: root, MaxEntries: maxEntries})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func mustSet(t *testing.T, s *Store, key, value string) {
	t.Helper()
	if err := s.Set(context.Background(), key, []byte(value)); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t, t.TempDir(), 10)
	mustSet(t, store, "k1", "v1")
	mustSet(t, store, "k1", "v2")

	raw, ok, err := store.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(raw) != "v2" {
		t.Fatalf("get=%q want v2", raw)
	}
	if store.Len() != 1 {
		t.Fatalf("len=%d want 1", store.Len())
	}
	if _, _, err := store.Get(context.Background(), " "); err == nil {
		t.Fatalf("expected error for blank key")
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root, 2)
	ctx := context.Background()

	mustSet(t, store, "a", "aa")
	mustSet(t, store, "b", "bb")
	if _, ok, err := store.Get(ctx, "a"); err != nil || !ok {
		t.Fatalf("touch a: ok=%v err=%v", ok, err)
	}
	mustSet(t, store, "c", "cc")

	if _, ok, err := store.Get(ctx, "b"); err != nil {
		t.Fatalf("get b: %v", err)
	} else if ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, err := os.Stat(filepath.Join(root, "data", hashedName("b"))); !os.IsNotExist(err) {
		t.Fatalf("evicted entry kept its file: %v", err)
	}
	if _, ok, err := store.Get(ctx, "a"); err != nil || !ok {
		t.Fatalf("expected a to remain: ok=%v err=%v", ok, err)
	}
}

func TestStoreRestoresRecencyFromIndex(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	store := newTestStore(t, root, 2)
	mustSet(t, store, "old", "1")
	mustSet(t, store, "new", "2")
	if _, ok, _ := store.Get(ctx, "old"); !ok {
		t.Fatalf("touch old: miss")
	}

	reopened := newTestStore(t, root, 2)
	raw, ok, err := reopened.Get(ctx, "new")
	if err != nil || !ok || string(raw) != "2" {
		t.Fatalf("get after reopen: raw=%q ok=%v err=%v", raw, ok, err)
	}
	// "old" was touched before reopening and "new" after, so "old" goes first.
	mustSet(t, reopened, "third", "3")
	if _, ok, _ := reopened.Get(ctx, "old"); ok {
		t.Fatalf("expected old to be evicted after reopen")
	}
}

func TestStoreDropsEntriesWithMissingFiles(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root, 10)
	mustSet(t, store, "gone", "x")
	if err := os.Remove(filepath.Join(root, "data", hashedName("gone"))); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, ok, err := store.Get(context.Background(), "gone"); err != nil || ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if reopened := newTestStore(t, root, 10); reopened.Len() != 0 {
		t.Fatalf("len after reopen=%d want 0", reopened.Len())
	}
}

func TestStoreDeletePrefix(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root, 0)
	ctx := context.Background()
	for _, k := range []string{"summary:file:r1:a", "summary:file:r1:b", "summary:file:r2:a"} {
		mustSet(t, store, k, k)
	}
	if err := store.DeletePrefix(ctx, "summary:file:r1:"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "summary:file:r1:a"); ok {
		t.Fatalf("r1 entry survived prefix delete")
	}
	if _, err := os.Stat(filepath.Join(root, "data", hashedName("summary:file:r1:b"))); !os.IsNotExist(err) {
		t.Fatalf("deleted entry kept its file: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "summary:file:r2:a"); !ok {
		t.Fatalf("r2 entry removed by prefix delete")
	}
}
