package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/shelf/internal/models"
)

const checksumKey = "document_checksum"

// SearchResult represents one search hit.
type SearchResult struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Genre           string `json:"genre"`
	PublicationYear int    `json:"publication_year"`
	ReadStatus      bool   `json:"read_status"`
	Snippet         string `json:"snippet"`
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// UpsertBook inserts a book at the end of the catalog order, or updates its
// fields in place when it is already indexed.
func (db *DB) UpsertBook(b models.Book) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var pos int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM books`).Scan(&pos); err != nil {
		return fmt.Errorf("index: next position: %w", err)
	}
	if err := upsert(tx, b, pos); err != nil {
		return err
	}
	return tx.Commit()
}

func upsert(tx *sql.Tx, b models.Book, pos int) error {
	_, err := tx.Exec(`
		INSERT INTO books (id, position, title, author, genre, publication_year, read_status, added_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title            = excluded.title,
			author           = excluded.author,
			genre            = excluded.genre,
			publication_year = excluded.publication_year,
			read_status      = excluded.read_status,
			added_date       = excluded.added_date
	`, b.ID, pos, b.Title, b.Author, b.Genre, b.PublicationYear, b.ReadStatus, b.AddedDate)
	if err != nil {
		return fmt.Errorf("index: upsert book: %w", err)
	}
	return ftsUpsert(tx, b)
}

// DeleteBook removes a book and its FTS entry.
func (db *DB) DeleteBook(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM books WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete book: %w", err)
	}
	return tx.Commit()
}

// Replace swaps the whole mirror for books in one transaction and records
// the checksum of the document they were loaded from.
func (db *DB) Replace(books []models.Book, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsClear(tx)
	if _, err := tx.Exec(`DELETE FROM books`); err != nil {
		return fmt.Errorf("index: clear books: %w", err)
	}
	for i, b := range books {
		if err := upsert(tx, b, i); err != nil {
			return err
		}
	}
	if err := setState(tx, checksumKey, checksum); err != nil {
		return err
	}
	return tx.Commit()
}

func setState(x execer, key, value string) error {
	_, err := x.Exec(`
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("index: set %s: %w", key, err)
	}
	return nil
}

// StoredChecksum returns the checksum recorded by the last Replace, or an
// empty string if the mirror was never synced.
func (db *DB) StoredChecksum() (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, checksumKey).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: stored checksum: %w", err)
	}
	return cs, nil
}

// SetChecksum records the checksum of the document the mirror now matches.
func (db *DB) SetChecksum(checksum string) error {
	return setState(db.conn, checksumKey, checksum)
}

// Count returns the number of indexed books.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// AllIDs returns every indexed book id.
func (db *DB) AllIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT id FROM books`)
	if err != nil {
		return nil, fmt.Errorf("index: all ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
