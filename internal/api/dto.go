package api

import (
	"github.com/starford/shelf/internal/index"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/stats"
)

// AddBookRequest is the request body for adding a book.
type AddBookRequest = models.NewBook

// StatusRequest is the request body for changing a read status.
type StatusRequest struct {
	Read *bool `json:"read" example:"true" validate:"required"`
}

// BookListResponse wraps a list of books.
type BookListResponse struct {
	Books []models.Book `json:"books" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps field search results.
type SearchResponse struct {
	Field   string        `json:"field" example:"author" validate:"required"`
	Query   string        `json:"query" example:"tolkien" validate:"required"`
	Results []models.Book `json:"results" validate:"required"`
}

// FullTextResponse wraps index search hits.
type FullTextResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// StatsResponse is the catalog statistics payload.
type StatsResponse = stats.Stats

// GenresResponse lists recognized genres.
type GenresResponse struct {
	Genres []string `json:"genres" validate:"required"`
}

// ValidationErrorResponse is returned when a book input is rejected.
type ValidationErrorResponse struct {
	Error string `json:"error" example:"title: must not be empty" validate:"required"`
	Kind  string `json:"kind" example:"EmptyField" validate:"required"`
	Field string `json:"field" example:"title" validate:"required"`
}

// SaveFailureResponse is returned when a change was applied in memory but
// could not be written to the catalog document.
type SaveFailureResponse struct {
	Error     string       `json:"error" validate:"required"`
	Persisted bool         `json:"persisted"`
	Book      *models.Book `json:"book,omitempty"`
}

// HealthResponse is the readiness payload.
type HealthResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
	Dirty  bool   `json:"dirty"`
	Books  int    `json:"books" example:"12"`
}
