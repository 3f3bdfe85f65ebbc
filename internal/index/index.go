package index

import "github.com/starford/shelf/internal/models"

// BookIndex defines the interface for catalog index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type BookIndex interface {
	UpsertBook(b models.Book) error
	DeleteBook(id string) error
	Replace(books []models.Book, checksum string) error
	StoredChecksum() (string, error)
	SetChecksum(checksum string) error
	Count() (int, error)
	AllIDs() (map[string]struct{}, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies BookIndex at compile time.
var _ BookIndex = (*DB)(nil)
