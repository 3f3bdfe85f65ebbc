package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/checksum"
	"github.com/starford/shelf/internal/models"
)

// legacyDateLayout is the added_date layout written by older catalogs.
const legacyDateLayout = "2006-01-02 15:04:05"

var emptyDocument = []byte("[]\n")

// Document reads and writes the whole catalog as one JSON array.
// It is the only reader and writer of the catalog file.
type Document struct {
	fs     Provider
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	checksum string
}

// NewDocument binds the catalog document name to a provider.
func NewDocument(fs Provider, name string, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{fs: fs, name: name, logger: logger}
}

// OpenDocument creates the parent directory of path if needed and returns a
// Document rooted there.
func OpenDocument(path string, logger *slog.Logger) (*Document, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create catalog dir: %w", err)
	}
	fs, err := NewFS(dir)
	if err != nil {
		return nil, err
	}
	return NewDocument(fs, filepath.Base(path), logger), nil
}

// Path returns the absolute path of the document.
func (d *Document) Path() string {
	return filepath.Join(d.fs.Root(), d.name)
}

// Name returns the document file name relative to its provider root.
func (d *Document) Name() string {
	return d.name
}

// Checksum returns the digest of the bytes last loaded or saved.
func (d *Document) Checksum() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checksum
}

// Raw returns the current on-disk bytes of the document.
func (d *Document) Raw() ([]byte, error) {
	data, err := d.fs.Read(d.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrNotReadable, err)
	}
	return data, nil
}

// Load reads the catalog. A missing document is created empty. A corrupt one
// is preserved next to the original, replaced with an empty document and
// reported as a warning; Load still succeeds.
func (d *Document) Load(ctx context.Context) ([]models.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exists, err := d.fs.Exists(d.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrNotReadable, err)
	}
	if !exists {
		d.logger.Info("catalog document missing, creating empty one", slog.String("path", d.Path()))
		if err := d.reset(); err != nil {
			return nil, err
		}
		return []models.Book{}, nil
	}
	data, err := d.fs.Read(d.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrNotReadable, err)
	}

	books, repaired, err := decodeBooks(data)
	if err != nil {
		d.logger.Warn("catalog document corrupt, resetting to empty",
			slog.String("path", d.Path()),
			slog.String("error", err.Error()))
		d.preserveCorrupt(data)
		if err := d.reset(); err != nil {
			return nil, err
		}
		return []models.Book{}, nil
	}

	d.warnInvalid(books)

	if repaired {
		d.logger.Info("catalog document upgraded to canonical form",
			slog.String("path", d.Path()),
			slog.Int("books", len(books)))
		if err := d.Save(ctx, books); err != nil {
			return nil, err
		}
		return books, nil
	}

	d.setChecksum(data)
	return books, nil
}

// Adopt decodes data, the current bytes of the document as written by
// someone else, and records them as last seen. Unlike Load it never
// rewrites the document: corrupt content is preserved beside it and
// reported as apperr.ErrCorrupt, and legacy records are upgraded on the
// next Save.
func (d *Document) Adopt(data []byte) ([]models.Book, error) {
	books, _, err := decodeBooks(data)
	if err != nil {
		d.preserveCorrupt(data)
		return nil, err
	}
	d.warnInvalid(books)
	d.setChecksum(data)
	return books, nil
}

// Save encodes books and atomically replaces the document.
func (d *Document) Save(ctx context.Context, books []models.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeBooks(books)
	if err != nil {
		return fmt.Errorf("storage: encode catalog: %w", err)
	}
	if err := d.fs.Write(d.name, data); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrNotWritable, err)
	}
	d.setChecksum(data)
	return nil
}

func (d *Document) reset() error {
	if err := d.fs.Write(d.name, emptyDocument); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrNotWritable, err)
	}
	d.setChecksum(emptyDocument)
	return nil
}

// preserveCorrupt keeps a copy of unreadable content for manual recovery.
func (d *Document) preserveCorrupt(data []byte) {
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	name := fmt.Sprintf("%s.corrupt-%s", d.name, time.Now().UTC().Format("20060102T150405Z"))
	if err := d.fs.Write(name, data); err != nil {
		d.logger.Warn("could not preserve corrupt catalog",
			slog.String("path", name),
			slog.String("error", err.Error()))
		return
	}
	d.logger.Warn("corrupt catalog preserved", slog.String("path", name))
}

// warnInvalid logs records that break the rules enforced on new books.
// Such records are kept; they usually come from hand edits.
func (d *Document) warnInvalid(books []models.Book) {
	maxYear := time.Now().Year()
	for i, b := range books {
		if reason := invalidReason(b, maxYear); reason != "" {
			d.logger.Warn("catalog record breaks book rules",
				slog.String("path", d.Path()),
				slog.Int("record", i),
				slog.String("id", b.ID),
				slog.String("reason", reason))
		}
	}
}

func invalidReason(b models.Book, maxYear int) string {
	switch {
	case strings.TrimSpace(b.Title) == "":
		return "empty title"
	case strings.TrimSpace(b.Author) == "":
		return "empty author"
	case b.PublicationYear < models.MinPublicationYear || b.PublicationYear > maxYear:
		return fmt.Sprintf("publication_year %d outside %d..%d", b.PublicationYear, models.MinPublicationYear, maxYear)
	}
	return ""
}

func (d *Document) setChecksum(data []byte) {
	d.mu.Lock()
	d.checksum = checksum.Sum(data)
	d.mu.Unlock()
}

// record is the on-disk shape. read_status and added_date are decoded by hand
// so that documents written by older versions still load.
type record struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Author          string          `json:"author"`
	PublicationYear int             `json:"publication_year"`
	Genre           string          `json:"genre"`
	ReadStatus      json.RawMessage `json:"read_status"`
	AddedDate       string          `json:"added_date"`
}

func decodeBooks(data []byte) ([]models.Book, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("%w: empty document", apperr.ErrCorrupt)
	}
	if trimmed[0] != '[' {
		return nil, false, fmt.Errorf("%w: document is not a JSON array", apperr.ErrCorrupt)
	}
	var recs []record
	if err := json.Unmarshal(trimmed, &recs); err != nil {
		return nil, false, fmt.Errorf("%w: %w", apperr.ErrCorrupt, err)
	}

	repaired := false
	books := make([]models.Book, 0, len(recs))
	for i, r := range recs {
		read, legacy, err := decodeReadStatus(r.ReadStatus)
		if err != nil {
			return nil, false, fmt.Errorf("%w: record %d: %w", apperr.ErrCorrupt, i, err)
		}
		added, legacyDate, err := decodeAddedDate(r.AddedDate)
		if err != nil {
			return nil, false, fmt.Errorf("%w: record %d: %w", apperr.ErrCorrupt, i, err)
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
			repaired = true
		}
		if legacy || legacyDate {
			repaired = true
		}
		books = append(books, models.Book{
			ID:              id,
			Title:           r.Title,
			Author:          r.Author,
			PublicationYear: r.PublicationYear,
			Genre:           r.Genre,
			ReadStatus:      read,
			AddedDate:       added,
		})
	}
	return books, repaired, nil
}

// decodeReadStatus accepts a JSON bool or the text labels "Read"/"Unread".
// legacy is true when the text form was found.
func decodeReadStatus(raw json.RawMessage) (read, legacy bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, true, nil
	}
	if err := json.Unmarshal(raw, &read); err == nil {
		return read, false, nil
	}
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return false, false, fmt.Errorf("read_status: %s", raw)
	}
	read, err = models.ParseReadLabel(label)
	if err != nil {
		return false, false, fmt.Errorf("read_status: %w", err)
	}
	return read, true, nil
}

func decodeAddedDate(s string) (t time.Time, legacy bool, err error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation(legacyDateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("added_date: %q", s)
	}
	return t.UTC(), true, nil
}

func encodeBooks(books []models.Book) ([]byte, error) {
	if books == nil {
		books = []models.Book{}
	}
	data, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
