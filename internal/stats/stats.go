// Package stats aggregates a catalog snapshot into counts and rankings.
package stats

import (
	"cmp"
	"slices"

	"github.com/starford/shelf/internal/models"
)

// Count is one ranked entry of a genre or author tally.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DecadeCount is the number of books published in one decade.
type DecadeCount struct {
	Decade int `json:"decade"`
	Count  int `json:"count"`
}

// Stats is the aggregate view of a catalog.
type Stats struct {
	TotalBooks   int           `json:"total_books"`
	ReadBooks    int           `json:"read_books"`
	UnreadBooks  int           `json:"unread_books"`
	PercentRead  float64       `json:"percent_read"`
	GenreCounts  []Count       `json:"genre_counts"`
	AuthorCounts []Count       `json:"author_counts"`
	DecadeCounts []DecadeCount `json:"decade_counts"`
}

// Compute aggregates books. It does not modify its input.
//
// Genre and author tallies are ordered by descending count; equal counts
// keep the order in which the key first appeared. Decades are ascending.
func Compute(books []models.Book) Stats {
	s := Stats{TotalBooks: len(books)}

	genres := newTally()
	authors := newTally()
	decades := make(map[int]int)

	for _, b := range books {
		if b.ReadStatus {
			s.ReadBooks++
		}
		genres.add(b.Genre)
		authors.add(b.Author)
		decades[b.Decade()]++
	}

	s.UnreadBooks = s.TotalBooks - s.ReadBooks
	if s.TotalBooks > 0 {
		s.PercentRead = float64(s.ReadBooks) / float64(s.TotalBooks) * 100
	}
	s.GenreCounts = genres.ranked()
	s.AuthorCounts = authors.ranked()

	s.DecadeCounts = make([]DecadeCount, 0, len(decades))
	for d, n := range decades {
		s.DecadeCounts = append(s.DecadeCounts, DecadeCount{Decade: d, Count: n})
	}
	slices.SortFunc(s.DecadeCounts, func(a, b DecadeCount) int {
		return cmp.Compare(a.Decade, b.Decade)
	})
	return s
}

// tally counts keys and remembers first-seen order.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(key string) {
	if _, ok := t.counts[key]; !ok {
		t.order = append(t.order, key)
	}
	t.counts[key]++
}

func (t *tally) ranked() []Count {
	out := make([]Count, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, Count{Key: k, Count: t.counts[k]})
	}
	slices.SortStableFunc(out, func(a, b Count) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return out
}
