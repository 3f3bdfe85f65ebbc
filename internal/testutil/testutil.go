// Package testutil provides shared test helpers for setting up catalogs and indexes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/shelf/internal/catalog"
	"github.com/starford/shelf/internal/index"
	"github.com/starford/shelf/internal/storage"
)

// Now is the fixed clock used by TestStore.
var Now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "shelf-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore opens a catalog backed by library.json in a temporary directory.
// It returns the store and the document path. Extra options are applied after
// the quiet logger and the fixed clock.
func TestStore(t *testing.T, opts ...catalog.Option) (*catalog.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.json")
	doc, err := storage.OpenDocument(path, Logger())
	if err != nil {
		t.Fatal(err)
	}
	all := append([]catalog.Option{
		catalog.WithLogger(Logger()),
		catalog.WithClock(func() time.Time { return Now }),
	}, opts...)
	store, err := catalog.Open(context.Background(), doc, all...)
	if err != nil {
		t.Fatal(err)
	}
	return store, path
}

// IndexedStore opens a TestStore whose changes are mirrored into a TestDB.
func IndexedStore(t *testing.T, opts ...catalog.Option) (*catalog.Store, *index.DB, string) {
	t.Helper()
	db := TestDB(t)
	var store *catalog.Store
	opts = append(opts, catalog.WithListener(func(ev catalog.Event) {
		if err := index.Apply(db, store, ev, Logger()); err != nil {
			t.Errorf("index apply: %v", err)
		}
	}))
	store, path := TestStore(t, opts...)
	return store, db, path
}
