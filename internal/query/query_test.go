package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/models"
)

func sample() []models.Book {
	return []models.Book{
		{ID: "1", Title: "The Hobbit", Author: "J.R.R. Tolkien", Genre: "Fantasy", ReadStatus: true},
		{ID: "2", Title: "Emma", Author: "Jane Austen", Genre: "Romance"},
		{ID: "3", Title: "The Silmarillion", Author: "J.R.R. Tolkien", Genre: "Fantasy"},
		{ID: "4", Title: "Straße der Ölsardinen", Author: "John Steinbeck", Genre: "Fiction", ReadStatus: true},
	}
}

func ids(books []models.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ID
	}
	return out
}

func TestSearch_AuthorCaseInsensitive(t *testing.T) {
	got, err := Search(sample()[:2], "tolkien", FieldAuthor)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestSearch_PreservesCatalogOrder(t *testing.T) {
	got, err := Search(sample(), "THE", FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(got))
}

func TestSearch_Genre(t *testing.T) {
	got, err := Search(sample(), "fan", FieldGenre)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(got))
}

func TestSearch_UnicodeFolding(t *testing.T) {
	got, err := Search(sample(), "STRASSE", FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(got))

	got, err = Search(sample(), "ölsardinen", FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(got))
}

func TestSearch_EmptyTermMatchesNothing(t *testing.T) {
	for _, term := range []string{"", "   "} {
		got, err := Search(sample(), term, FieldTitle)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestSearch_NoMatch(t *testing.T) {
	got, err := Search(sample(), "dostoevsky", FieldAuthor)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_InvalidField(t *testing.T) {
	_, err := Search(sample(), "x", Field("isbn"))
	require.ErrorIs(t, err, apperr.ErrInvalidField)
}

func TestParseField(t *testing.T) {
	for in, want := range map[string]Field{"title": FieldTitle, "Author": FieldAuthor, " GENRE ": FieldGenre} {
		got, err := ParseField(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "year", "read_status"} {
		_, err := ParseField(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidField, bad)
	}
}

func TestFilterByStatus(t *testing.T) {
	assert.Equal(t, []string{"1", "4"}, ids(FilterByStatus(sample(), true)))
	assert.Equal(t, []string{"2", "3"}, ids(FilterByStatus(sample(), false)))
	assert.NotNil(t, FilterByStatus(nil, true))
}
