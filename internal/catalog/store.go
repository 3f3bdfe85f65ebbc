// Package catalog owns the in-memory book catalog and keeps it persisted
// through a storage.Document after every mutation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/checksum"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/query"
	"github.com/starford/shelf/internal/stats"
)

// Document is the persistence the store writes through.
// *storage.Document satisfies it.
type Document interface {
	Load(ctx context.Context) ([]models.Book, error)
	Save(ctx context.Context, books []models.Book) error
	Raw() ([]byte, error)
	Adopt(data []byte) ([]models.Book, error)
	Checksum() string
}

// EventKind names a catalog change.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventRemoved  EventKind = "removed"
	EventUpdated  EventKind = "updated"
	EventReloaded EventKind = "reloaded"
)

// Event is delivered to listeners after a change has been persisted.
// Book is the zero value for EventReloaded.
type Event struct {
	Kind EventKind
	Book models.Book
}

// Listener receives catalog change events. It is called without the store
// lock held and must not block for long.
type Listener func(Event)

// Store is the single owner of the catalog. All methods are safe for
// concurrent use; mutations are serialised so that each one reads, changes
// and persists the catalog before the next begins.
type Store struct {
	doc       Document
	logger    *slog.Logger
	now       func() time.Time
	genres    *models.Genres
	listeners []Listener

	mu    sync.Mutex
	books []models.Book
	dirty bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for added dates and year checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGenres sets the recognized genre set.
func WithGenres(g *models.Genres) Option {
	return func(s *Store) { s.genres = g }
}

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// Open loads the catalog from doc and returns a ready store.
func Open(ctx context.Context, doc Document, opts ...Option) (*Store, error) {
	s := &Store{
		doc:    doc,
		logger: slog.Default(),
		now:    time.Now,
		genres: models.NewGenres(),
	}
	for _, opt := range opts {
		opt(s)
	}
	books, err := doc.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	s.books = books
	s.logger.Debug("catalog loaded", slog.Int("books", len(books)))
	return s, nil
}

// Genres returns the recognized genre set.
func (s *Store) Genres() *models.Genres {
	return s.genres
}

// AddBook validates in, appends a new record and persists the catalog.
// On a save failure the record stays in memory and is returned together
// with an error wrapping apperr.ErrNotWritable.
func (s *Store) AddBook(ctx context.Context, in models.NewBook) (models.Book, error) {
	in = in.Normalize()
	if err := validateNewBook(in, s.now()); err != nil {
		return models.Book{}, err
	}

	book := models.Book{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Author:          in.Author,
		PublicationYear: in.PublicationYear,
		Genre:           s.genres.Canonical(in.Genre),
		ReadStatus:      in.ReadStatus,
		AddedDate:       s.now().UTC(),
	}

	_, err := s.mutate(ctx, func() (Event, bool, error) {
		s.books = append(s.books, book)
		return Event{Kind: EventAdded, Book: book}, true, nil
	})
	if err != nil {
		return book, err
	}
	s.logger.Info("book added", slog.String("id", book.ID), slog.String("title", book.Title))
	return book, nil
}

// RemoveBook deletes the record with the given id and persists the catalog.
// An unknown id returns apperr.ErrNotFound and leaves the catalog untouched.
func (s *Store) RemoveBook(ctx context.Context, id string) (models.Book, error) {
	removed, err := s.mutate(ctx, func() (Event, bool, error) {
		i := s.indexLocked(id)
		if i < 0 {
			return Event{}, false, fmt.Errorf("book %q: %w", id, apperr.ErrNotFound)
		}
		b := s.books[i]
		s.books = slices.Delete(s.books, i, i+1)
		return Event{Kind: EventRemoved, Book: b}, true, nil
	})
	if err != nil {
		return removed, err
	}
	s.logger.Info("book removed", slog.String("id", removed.ID), slog.String("title", removed.Title))
	return removed, nil
}

// SetReadStatus sets the read flag of a record and persists the catalog.
// Setting the current value succeeds without rewriting the document.
func (s *Store) SetReadStatus(ctx context.Context, id string, read bool) (models.Book, error) {
	changed := false
	book, err := s.mutate(ctx, func() (Event, bool, error) {
		i := s.indexLocked(id)
		if i < 0 {
			return Event{}, false, fmt.Errorf("book %q: %w", id, apperr.ErrNotFound)
		}
		if s.books[i].ReadStatus == read && !s.dirty {
			return Event{Book: s.books[i]}, false, nil
		}
		s.books[i].ReadStatus = read
		changed = true
		return Event{Kind: EventUpdated, Book: s.books[i]}, true, nil
	})
	if err != nil || !changed {
		return book, err
	}
	s.logger.Info("read status changed", slog.String("id", book.ID), slog.Bool("read", read))
	return book, nil
}

// mutate runs change against the catalog and persists the result, all under
// the store lock. The catalog is first refreshed from disk when another
// writer replaced the document, so that change applies to the latest
// catalog instead of overwriting it. change reports whether it modified
// anything; an error from change leaves the catalog as it was.
//
// Listeners get EventReloaded when the refresh changed the catalog or a save
// clears the dirty window, then the change's own event once it is on disk.
func (s *Store) mutate(ctx context.Context, change func() (Event, bool, error)) (models.Book, error) {
	s.mu.Lock()
	refreshed := s.refreshLocked()
	ev, modified, err := change()
	if err != nil || !modified {
		s.mu.Unlock()
		if refreshed {
			s.notify(Event{Kind: EventReloaded})
		}
		return ev.Book, err
	}
	wasDirty := s.dirty
	err = s.persistLocked(ctx)
	s.mu.Unlock()

	if refreshed || (wasDirty && err == nil) {
		s.notify(Event{Kind: EventReloaded})
	}
	if err != nil {
		return ev.Book, err
	}
	s.notify(ev)
	return ev.Book, nil
}

// refreshLocked adopts the document on disk when its bytes differ from the
// ones this store last loaded or saved. Unsaved changes win over the disk;
// so does the catalog in memory when the disk copy is unreadable, in which
// case the next save rewrites it. It reports whether the catalog changed.
func (s *Store) refreshLocked() bool {
	raw, err := s.doc.Raw()
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		s.logger.Warn("document unreadable, keeping catalog in memory",
			slog.String("error", err.Error()))
		return false
	}
	if checksum.Sum(raw) == s.doc.Checksum() {
		return false
	}
	if s.dirty {
		s.logger.Warn("document changed on disk while catalog has unsaved changes, keeping memory")
		return false
	}
	books, err := s.doc.Adopt(raw)
	if err != nil {
		s.logger.Warn("document on disk is corrupt, keeping catalog in memory",
			slog.String("error", err.Error()))
		return false
	}
	s.books = books
	s.logger.Info("catalog refreshed from disk", slog.Int("books", len(books)))
	return true
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Book{}, fmt.Errorf("book %q: %w", id, apperr.ErrNotFound)
	}
	return s.books[i], nil
}

// Books returns a copy of the catalog in insertion order.
func (s *Store) Books() []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Book, len(s.books))
	copy(out, s.books)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.books)
}

// Search runs a field search over a snapshot of the catalog.
func (s *Store) Search(term string, field query.Field) ([]models.Book, error) {
	return query.Search(s.Books(), term, field)
}

// Stats aggregates a snapshot of the catalog.
func (s *Store) Stats() stats.Stats {
	return stats.Compute(s.Books())
}

// Checksum returns the checksum of the document as last loaded or saved.
func (s *Store) Checksum() string {
	return s.doc.Checksum()
}

// Dirty reports whether the in-memory catalog holds changes that failed
// to persist.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush persists the in-memory catalog. It is the retry path after a
// failed save. Clearing the dirty window is announced as EventReloaded.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	wasDirty := s.dirty
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err == nil && wasDirty {
		s.notify(Event{Kind: EventReloaded})
	}
	return err
}

// Reload replaces the in-memory catalog with the document on disk when the
// document changed since it was last loaded or saved by this store.
// Unsaved in-memory changes are kept and Reload reports no change. A
// corrupt document is set aside and overwritten with the catalog in memory.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.dirty {
		s.mu.Unlock()
		s.logger.Warn("reload skipped, catalog has unsaved changes")
		return false, nil
	}
	raw, err := s.doc.Raw()
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("document removed on disk, rewriting it from memory")
		err = s.persistLocked(ctx)
		s.mu.Unlock()
		return false, err
	}
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("catalog: reload: %w", err)
	}
	if checksum.Sum(raw) == s.doc.Checksum() {
		s.mu.Unlock()
		return false, nil
	}
	books, err := s.doc.Adopt(raw)
	if errors.Is(err, apperr.ErrCorrupt) {
		s.logger.Warn("document on disk is corrupt, rewriting it from memory",
			slog.String("error", err.Error()))
		err = s.persistLocked(ctx)
		s.mu.Unlock()
		return false, err
	}
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("catalog: reload: %w", err)
	}
	s.books = books
	s.mu.Unlock()

	s.logger.Info("catalog reloaded from disk", slog.Int("books", len(books)))
	s.notify(Event{Kind: EventReloaded})
	return true, nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.doc.Save(ctx, s.books); err != nil {
		s.dirty = true
		s.logger.Error("catalog save failed, memory is ahead of disk",
			slog.Int("books", len(s.books)),
			slog.String("error", err.Error()))
		if errors.Is(err, apperr.ErrNotWritable) {
			return err
		}
		return fmt.Errorf("%w: %w", apperr.ErrNotWritable, err)
	}
	s.dirty = false
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.books, func(b models.Book) bool { return b.ID == id })
}

func (s *Store) notify(ev Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}
