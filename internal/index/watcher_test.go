package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/shelf/internal/catalog"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/storage"
)

// watcherTestEnv sets up a catalog document, store and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *catalog.Store, *DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.json")
	doc, err := storage.OpenDocument(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	store, err := catalog.Open(context.Background(), doc, catalog.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	return path, store, db
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

const externalDoc = `[
  {"id": "ext-1", "title": "Dune", "author": "Frank Herbert", "publication_year": 1965,
   "genre": "Science Fiction", "read_status": true, "added_date": "2025-01-01T00:00:00Z"}
]`

func TestWatcher_ExternalEditReloads(t *testing.T) {
	path, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, path, store, db, quietLogger(), func(kind, p string) {
		mu.Lock()
		events = append(events, kind)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(path, []byte(externalDoc), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := store.Get("ext-1")
		return err == nil
	}, "external edit not reloaded into the store")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		res, _ := db.Search("herbert", 10)
		return len(res) == 1
	}, "index not synced after reload")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && events[0] == "reloaded"
	}, "expected one reloaded callback")
}

func TestWatcher_OwnWritesIgnored(t *testing.T) {
	path, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	go Watch(ctx, path, store, db, quietLogger(), func(string, string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	_, err := store.AddBook(context.Background(), models.NewBook{Title: "Emma", Author: "Jane Austen", PublicationYear: 1815})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(3 * reloadDebounce)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callback fired %d times for the store's own write", calls)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestWatcher_OtherFilesIgnored(t *testing.T) {
	path, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	go Watch(ctx, path, store, db, quietLogger(), func(string, string) {
		fired <- struct{}{}
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(filepath.Dir(path), "notes.json"), []byte(externalDoc), 0o644)

	select {
	case <-fired:
		t.Error("unrelated file triggered a reload")
	case <-time.After(3 * reloadDebounce):
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	path, store, db := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, store, db, quietLogger(), nil) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
