// Package query implements field search over a catalog snapshot.
package query

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/models"
)

// Field names a searchable book attribute.
type Field string

const (
	FieldTitle  Field = "title"
	FieldAuthor Field = "author"
	FieldGenre  Field = "genre"
)

// Fields lists the searchable fields.
var Fields = []Field{FieldTitle, FieldAuthor, FieldGenre}

// ParseField maps s (case-insensitive) onto a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

// Validate returns apperr.ErrInvalidField for unknown fields.
func (f Field) Validate() error {
	switch f {
	case FieldTitle, FieldAuthor, FieldGenre:
		return nil
	}
	return fmt.Errorf("%w: %q (want title, author or genre)", apperr.ErrInvalidField, string(f))
}

func (f Field) value(b models.Book) string {
	switch f {
	case FieldAuthor:
		return b.Author
	case FieldGenre:
		return b.Genre
	default:
		return b.Title
	}
}

// Search returns the books whose field contains term, ignoring case, in
// catalog order. A blank term matches nothing.
func Search(books []models.Book, term string, field Field) ([]models.Book, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	out := []models.Book{}
	term = strings.TrimSpace(term)
	if term == "" {
		return out, nil
	}
	fold := cases.Fold()
	needle := fold.String(term)
	for _, b := range books {
		if strings.Contains(fold.String(field.value(b)), needle) {
			out = append(out, b)
		}
	}
	return out, nil
}

// FilterByStatus returns the books whose read status equals read, in
// catalog order.
func FilterByStatus(books []models.Book, read bool) []models.Book {
	out := []models.Book{}
	for _, b := range books {
		if b.ReadStatus == read {
			out = append(out, b)
		}
	}
	return out
}
