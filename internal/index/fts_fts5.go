//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/shelf/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS books_fts USING fts5(
			id UNINDEXED,
			title,
			author,
			genre,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, b models.Book) error {
	_, _ = tx.Exec(`DELETE FROM books_fts WHERE id = ?`, b.ID)
	_, err := tx.Exec(`INSERT INTO books_fts (id, title, author, genre) VALUES (?, ?, ?, ?)`,
		b.ID, b.Title, b.Author, b.Genre)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM books_fts WHERE id = ?`, id)
}

func ftsClear(tx *sql.Tx) {
	_, _ = tx.Exec(`DELETE FROM books_fts`)
}

// matchExpr quotes every term so punctuation such as "J.R.R." is not parsed
// as FTS5 syntax. The last term is a prefix match.
func matchExpr(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	if n := len(terms); n > 0 {
		terms[n-1] += "*"
	}
	return strings.Join(terms, " ")
}

// Search performs an FTS5 full-text search ranked by relevance.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT b.id, b.title, b.author, b.genre, b.publication_year, b.read_status,
		       highlight(books_fts, 1, '<b>', '</b>')
		FROM books_fts
		JOIN books b ON b.id = books_fts.id
		WHERE books_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, matchExpr(query), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Author, &r.Genre, &r.PublicationYear, &r.ReadStatus, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
