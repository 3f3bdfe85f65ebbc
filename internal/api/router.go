package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// writeTimeout bounds the context of mutating requests.
func NewRouter(cat Catalog, ft FullText, authEnabled bool, token string, sseHandler http.Handler, writeTimeout time.Duration) chi.Router {
	h := NewHandler(cat, ft)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Books.
	r.Get("/books", h.ListBooks)
	r.Get("/books/{id}", h.GetBook)
	r.Group(func(r chi.Router) {
		r.Use(WriteTimeout(writeTimeout))
		r.Post("/books", h.AddBook)
		r.Delete("/books/{id}", h.RemoveBook)
		r.Put("/books/{id}/status", h.SetReadStatus)
	})

	// Search.
	r.Get("/search", h.Search)
	r.Get("/fulltext", h.FullText)

	// Aggregates.
	r.Get("/stats", h.Stats)
	r.Get("/genres", h.Genres)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// MountHealth registers the unauthenticated liveness and readiness checks.
func MountHealth(r chi.Router, cat Catalog) {
	h := NewHandler(cat, nil)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
}
