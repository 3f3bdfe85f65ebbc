package index

import (
	"fmt"
	"log/slog"

	"github.com/starford/shelf/internal/catalog"
	"github.com/starford/shelf/internal/models"
)

// Source is the catalog view the index mirrors.
type Source interface {
	Books() []models.Book
	Checksum() string
}

// Sync brings the mirror up to date with src. When the recorded checksum
// already matches the document nothing is rewritten.
func Sync(db *DB, src Source, logger *slog.Logger) error {
	sum := src.Checksum()
	stored, err := db.StoredChecksum()
	if err != nil {
		return err
	}
	if stored != "" && stored == sum {
		logger.Debug("sync: index up to date")
		return nil
	}
	books := src.Books()
	if err := db.Replace(books, sum); err != nil {
		return fmt.Errorf("index: sync: %w", err)
	}
	logger.Debug("sync: index rebuilt", slog.Int("books", len(books)))
	return nil
}

// Apply mirrors a single catalog change. A reload rebuilds the mirror.
func Apply(db *DB, src Source, ev catalog.Event, logger *slog.Logger) error {
	var err error
	switch ev.Kind {
	case catalog.EventAdded, catalog.EventUpdated:
		err = db.UpsertBook(ev.Book)
	case catalog.EventRemoved:
		err = db.DeleteBook(ev.Book.ID)
	case catalog.EventReloaded:
		return Sync(db, src, logger)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return db.SetChecksum(src.Checksum())
}
