package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/shelf/internal/index"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/query"
	"github.com/starford/shelf/internal/stats"
)

const (
	defaultFullTextLimit = 20
	maxFullTextLimit     = 100
	maxBodyBytes         = 1 << 20
)

// Catalog is the catalog surface the API needs. *catalog.Store satisfies it.
type Catalog interface {
	AddBook(ctx context.Context, in models.NewBook) (models.Book, error)
	RemoveBook(ctx context.Context, id string) (models.Book, error)
	SetReadStatus(ctx context.Context, id string, read bool) (models.Book, error)
	Get(id string) (models.Book, error)
	Books() []models.Book
	Search(term string, field query.Field) ([]models.Book, error)
	Stats() stats.Stats
	Genres() *models.Genres
	Dirty() bool
}

// FullText searches the SQLite mirror. *index.DB satisfies it.
type FullText interface {
	Search(q string, limit int) ([]index.SearchResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	cat Catalog
	ft  FullText
}

// NewHandler creates a new Handler. ft may be nil, in which case full-text
// search answers 503.
func NewHandler(cat Catalog, ft FullText) *Handler {
	return &Handler{cat: cat, ft: ft}
}

// fieldParam reads ?field=, defaulting to title.
func fieldParam(r *http.Request) (query.Field, error) {
	raw := r.URL.Query().Get("field")
	if raw == "" {
		return query.FieldTitle, nil
	}
	return query.ParseField(raw)
}

// ListBooks handles GET /api/books.
//
//	@Summary		List books in catalog order
//	@Tags			books
//	@Produce		json
//	@Param			read	query		bool	false	"Filter by read status"
//	@Param			q		query		string	false	"Search term"
//	@Param			field	query		string	false	"Search field"	Enums(title, author, genre)
//	@Success		200		{object}	BookListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books [get]
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books := h.cat.Books()

	if term := strings.TrimSpace(q.Get("q")); term != "" {
		field, err := fieldParam(r)
		if err != nil {
			writeStoreError(w, "list books", models.Book{}, err)
			return
		}
		books, err = query.Search(books, term, field)
		if err != nil {
			writeStoreError(w, "list books", models.Book{}, err)
			return
		}
	}

	if raw := q.Get("read"); raw != "" {
		read, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'read' must be true or false"))
			return
		}
		books = query.FilterByStatus(books, read)
	}

	writeJSON(w, http.StatusOK, BookListResponse{Books: books, Total: len(books)})
}

// GetBook handles GET /api/books/{id}.
//
//	@Summary		Get a single book by id
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book id"
//	@Success		200	{object}	models.Book
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id} [get]
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.cat.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get book", models.Book{}, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// AddBook handles POST /api/books.
//
//	@Summary		Add a book
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddBookRequest	true	"Book to add"
//	@Success		201		{object}	models.Book
//	@Failure		400		{object}	ValidationErrorResponse
//	@Failure		500		{object}	SaveFailureResponse
//	@Security		BearerAuth
//	@Router			/books [post]
func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req AddBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	book, err := h.cat.AddBook(r.Context(), req)
	if err != nil {
		writeStoreError(w, "add book", book, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// RemoveBook handles DELETE /api/books/{id}.
//
//	@Summary		Remove a book
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book id"
//	@Success		200	{object}	models.Book
//	@Failure		404	{object}	errResponse
//	@Failure		500	{object}	SaveFailureResponse
//	@Security		BearerAuth
//	@Router			/books/{id} [delete]
func (h *Handler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.cat.RemoveBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "remove book", book, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// SetReadStatus handles PUT /api/books/{id}/status.
//
//	@Summary		Mark a book read or unread
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Book id"
//	@Param			body	body		StatusRequest	true	"New status"
//	@Success		200		{object}	models.Book
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id}/status [put]
func (h *Handler) SetReadStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Read == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("read is required"))
		return
	}
	book, err := h.cat.SetReadStatus(r.Context(), chi.URLParam(r, "id"), *req.Read)
	if err != nil {
		writeStoreError(w, "set read status", book, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Search handles GET /api/search.
//
//	@Summary		Search books by one field
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search term"
//	@Param			field	query		string	false	"Search field"	Enums(title, author, genre)
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	field, err := fieldParam(r)
	if err != nil {
		writeStoreError(w, "search", models.Book{}, err)
		return
	}
	results, err := h.cat.Search(term, field)
	if err != nil {
		writeStoreError(w, "search", models.Book{}, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Field: string(field), Query: term, Results: results})
}

// FullText handles GET /api/fulltext.
//
//	@Summary		Full-text search across title, author and genre
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	FullTextResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fulltext [get]
func (h *Handler) FullText(w http.ResponseWriter, r *http.Request) {
	if h.ft == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("full-text index unavailable"))
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultFullTextLimit
	}
	limit = min(limit, maxFullTextLimit)

	results, err := h.ft.Search(q, limit)
	if err != nil {
		slog.Error("full-text search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, FullTextResponse{Results: results})
}

// Stats handles GET /api/stats.
//
//	@Summary		Catalog statistics
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cat.Stats())
}

// Genres handles GET /api/genres.
//
//	@Summary		Recognized genres
//	@Tags			books
//	@Produce		json
//	@Success		200	{object}	GenresResponse
//	@Security		BearerAuth
//	@Router			/genres [get]
func (h *Handler) Genres(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, GenresResponse{Genres: h.cat.Genres().Names()})
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /health/ready. The catalog being dirty is reported but
// does not fail readiness; reads are still served from memory.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	dirty := h.cat.Dirty()
	status := "ok"
	if dirty {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: status, Dirty: dirty, Books: len(h.cat.Books())})
}
