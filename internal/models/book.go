// Package models defines the domain types for Shelf.
package models

import (
	"fmt"
	"strings"
	"time"
)

// MinPublicationYear is the earliest publication year accepted for a book.
const MinPublicationYear = 1000

// GenreOther is assigned when a book is added without a genre.
const GenreOther = "Other"

// DefaultGenres is the built-in set of recognized genres.
var DefaultGenres = []string{
	"Fiction",
	"Non-Fiction",
	"Science Fiction",
	"Fantasy",
	"Mystery",
	"Thriller",
	"Romance",
	"Biography",
	"History",
	"Science",
	"Philosophy",
	"Poetry",
	"Self-Help",
	GenreOther,
}

// Book is a single record in the catalog.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PublicationYear int       `json:"publication_year"`
	Genre           string    `json:"genre"`
	ReadStatus      bool      `json:"read_status"`
	AddedDate       time.Time `json:"added_date"`
}

// Decade returns the publication year rounded down to a multiple of ten.
func (b Book) Decade() int {
	y := b.PublicationYear
	d := y - y%10
	if y < 0 && y%10 != 0 {
		d -= 10
	}
	return d
}

// ParseReadLabel maps a text read status ("Read", "Unread", "yes", "no",
// "true", "false", case-insensitive) onto a bool. An empty label is unread.
func ParseReadLabel(label string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "read", "true", "yes":
		return true, nil
	case "unread", "false", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("unknown read status %q", label)
}

// NewBook carries the caller-supplied fields of a book being added.
type NewBook struct {
	Title           string `json:"title" yaml:"title"`
	Author          string `json:"author" yaml:"author"`
	PublicationYear int    `json:"publication_year" yaml:"publication_year"`
	Genre           string `json:"genre" yaml:"genre"`
	ReadStatus      bool   `json:"read_status" yaml:"read_status"`
}

// Normalize trims text fields.
func (n NewBook) Normalize() NewBook {
	n.Title = strings.TrimSpace(n.Title)
	n.Author = strings.TrimSpace(n.Author)
	n.Genre = strings.TrimSpace(n.Genre)
	return n
}

// Genres is a set of recognized genre names, matched case-insensitively.
type Genres struct {
	names []string
	byKey map[string]string
}

// NewGenres builds a genre set from DefaultGenres plus any extra names.
// Duplicates (case-insensitive) are dropped, first spelling wins.
func NewGenres(extra ...string) *Genres {
	g := &Genres{byKey: make(map[string]string)}
	for _, list := range [][]string{DefaultGenres, extra} {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := g.byKey[key]; ok {
				continue
			}
			g.byKey[key] = name
			g.names = append(g.names, name)
		}
	}
	return g
}

// Names returns the recognized genres in definition order.
func (g *Genres) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Known reports whether name is a recognized genre.
func (g *Genres) Known(name string) bool {
	_, ok := g.byKey[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Canonical maps name onto its recognized spelling. Unrecognized names are
// returned trimmed; an empty name becomes GenreOther.
func (g *Genres) Canonical(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return GenreOther
	}
	if c, ok := g.byKey[strings.ToLower(name)]; ok {
		return c
	}
	return name
}
