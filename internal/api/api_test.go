package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/catalog"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/stats"
	"github.com/starford/shelf/internal/testutil"
)

// testEnv sets up a temp catalog, SQLite mirror and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*catalog.Store, http.Handler) {
	t.Helper()
	store, db, _ := testutil.IndexedStore(t)
	router := NewRouter(store, db, authToken != "", authToken, nil, time.Second)
	return store, router
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func addBook(t *testing.T, router http.Handler, title, author string, year int, genre string) models.Book {
	t.Helper()
	w := do(t, router, http.MethodPost, "/books", map[string]any{
		"title": title, "author": author, "publication_year": year, "genre": genre,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add %q status = %d, body = %s", title, w.Code, w.Body.String())
	}
	var b models.Book
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	return b
}

func seed(t *testing.T, router http.Handler) []models.Book {
	t.Helper()
	return []models.Book{
		addBook(t, router, "The Hobbit", "J.R.R. Tolkien", 1937, "Fantasy"),
		addBook(t, router, "Dune", "Frank Herbert", 1965, "science fiction"),
		addBook(t, router, "The Silmarillion", "Christopher Tolkien", 1977, "Fantasy"),
	}
}

func TestAddAndGetBook(t *testing.T) {
	_, router := testEnv(t, "")

	created := addBook(t, router, "  Dune ", "Frank Herbert", 1965, "science fiction")
	if created.ID == "" {
		t.Fatal("expected an id")
	}
	if created.Title != "Dune" {
		t.Errorf("title = %q, want trimmed", created.Title)
	}
	if created.Genre != "Science Fiction" {
		t.Errorf("genre = %q, want canonical spelling", created.Genre)
	}
	if !created.AddedDate.Equal(testutil.Now) {
		t.Errorf("added_date = %v, want %v", created.AddedDate, testutil.Now)
	}

	w := do(t, router, http.MethodGet, "/books/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Book
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != created.ID || got.Author != "Frank Herbert" || got.PublicationYear != 1965 {
		t.Errorf("got %+v", got)
	}
}

func TestAddBook_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name  string
		body  map[string]any
		kind  string
		field string
	}{
		{"empty title", map[string]any{"title": "  ", "author": "A", "publication_year": 2000}, "EmptyField", "title"},
		{"empty author", map[string]any{"title": "T", "author": "", "publication_year": 2000}, "EmptyField", "author"},
		{"year too old", map[string]any{"title": "T", "author": "A", "publication_year": 999}, "InvalidYear", "publication_year"},
		{"year in future", map[string]any{"title": "T", "author": "A", "publication_year": 2026}, "InvalidYear", "publication_year"},
		{"year missing", map[string]any{"title": "T", "author": "A"}, "InvalidYear", "publication_year"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/books", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", w.Code, w.Body.String())
			}
			var resp ValidationErrorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", resp.Kind, tc.kind)
			}
			if resp.Field != tc.field {
				t.Errorf("field = %q, want %q", resp.Field, tc.field)
			}
		})
	}

	w := do(t, router, http.MethodGet, "/books", nil)
	var list BookListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("rejected inputs were stored: total = %d", list.Total)
	}
}

func TestAddBook_InvalidJSON(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/books", `{"title": `)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListBooks(t *testing.T) {
	_, router := testEnv(t, "")
	books := seed(t, router)

	w := do(t, router, http.MethodPut, "/books/"+books[1].ID+"/status", map[string]bool{"read": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status update = %d", w.Code)
	}

	cases := []struct {
		target string
		want   []string
	}{
		{"/books", []string{"The Hobbit", "Dune", "The Silmarillion"}},
		{"/books?read=true", []string{"Dune"}},
		{"/books?read=false", []string{"The Hobbit", "The Silmarillion"}},
		{"/books?q=tolkien&field=author", []string{"The Hobbit", "The Silmarillion"}},
		{"/books?q=tolkien&field=author&read=false", []string{"The Hobbit", "The Silmarillion"}},
		{"/books?q=the", []string{"The Hobbit", "The Silmarillion"}},
	}
	for _, tc := range cases {
		w := do(t, router, http.MethodGet, tc.target, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tc.target, w.Code)
		}
		var list BookListResponse
		_ = json.Unmarshal(w.Body.Bytes(), &list)
		var titles []string
		for _, b := range list.Books {
			titles = append(titles, b.Title)
		}
		if strings.Join(titles, "|") != strings.Join(tc.want, "|") {
			t.Errorf("%s = %v, want %v", tc.target, titles, tc.want)
		}
		if list.Total != len(tc.want) {
			t.Errorf("%s total = %d, want %d", tc.target, list.Total, len(tc.want))
		}
	}

	for _, target := range []string{"/books?read=maybe", "/books?q=x&field=isbn"} {
		w := do(t, router, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, w.Code)
		}
	}
}

func TestRemoveBook(t *testing.T) {
	store, router := testEnv(t, "")
	books := seed(t, router)

	w := do(t, router, http.MethodDelete, "/books/"+books[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d, want 200", w.Code)
	}
	var removed models.Book
	_ = json.Unmarshal(w.Body.Bytes(), &removed)
	if removed.Title != "The Hobbit" {
		t.Errorf("removed = %q", removed.Title)
	}
	if store.Len() != 2 {
		t.Errorf("len = %d, want 2", store.Len())
	}

	w = do(t, router, http.MethodGet, "/books/"+books[0].ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestRemoveBook_NotFound(t *testing.T) {
	store, router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodDelete, "/books/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete unknown = %d, want 404", w.Code)
	}
	if store.Len() != 3 {
		t.Errorf("len = %d, want 3", store.Len())
	}
}

func TestSetReadStatus(t *testing.T) {
	_, router := testEnv(t, "")
	books := seed(t, router)

	w := do(t, router, http.MethodPut, "/books/"+books[0].ID+"/status", map[string]bool{"read": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var b models.Book
	_ = json.Unmarshal(w.Body.Bytes(), &b)
	if !b.ReadStatus {
		t.Error("expected read")
	}

	w = do(t, router, http.MethodPut, "/books/"+books[0].ID+"/status", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing read = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPut, "/books/nope/status", map[string]bool{"read": true})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/search?q=J.R.R.&field=author", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Author != "J.R.R. Tolkien" {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Field != "author" {
		t.Errorf("field = %q", resp.Field)
	}

	w = do(t, router, http.MethodGet, "/search?q=FANTASY&field=Genre", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Errorf("genre results = %d, want 2", len(resp.Results))
	}

	w = do(t, router, http.MethodGet, "/search?q=zzz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("no-match search = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("no-match body = %s, want empty results array", w.Body.String())
	}
}

func TestSearchBadRequests(t *testing.T) {
	_, router := testEnv(t, "")
	for _, target := range []string{"/search", "/search?q=%20%20", "/search?q=x&field=isbn", "/fulltext"} {
		w := do(t, router, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, w.Code)
		}
	}
}

func TestFullTextEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/fulltext?q=tolkien", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("fulltext = %d, body = %s", w.Code, w.Body.String())
	}
	var resp FullTextResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}

	w = do(t, router, http.MethodGet, "/fulltext?q=tolkien&limit=1", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("limited results = %d, want 1", len(resp.Results))
	}
}

func TestFullText_Unavailable(t *testing.T) {
	store, _ := testutil.TestStore(t)
	router := NewRouter(store, nil, false, "", nil, 0)
	w := do(t, router, http.MethodGet, "/fulltext?q=x", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("fulltext without index = %d, want 503", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	books := seed(t, router)
	do(t, router, http.MethodPut, "/books/"+books[0].ID+"/status", map[string]bool{"read": true})

	w := do(t, router, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var s stats.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &s)
	if s.TotalBooks != 3 || s.ReadBooks != 1 || s.UnreadBooks != 2 {
		t.Errorf("counts = %+v", s)
	}
	if len(s.GenreCounts) == 0 || s.GenreCounts[0].Key != "Fantasy" || s.GenreCounts[0].Count != 2 {
		t.Errorf("genre counts = %+v", s.GenreCounts)
	}
}

func TestStatsEndpoint_Empty(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/stats", nil)
	var s stats.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &s)
	if s.TotalBooks != 0 || s.PercentRead != 0 {
		t.Errorf("empty stats = %+v", s)
	}
}

func TestGenresEndpoint(t *testing.T) {
	store, _ := testutil.TestStore(t, catalog.WithGenres(models.NewGenres("Manga")))
	router := NewRouter(store, nil, false, "", nil, 0)

	w := do(t, router, http.MethodGet, "/genres", nil)
	var resp GenresResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Genres) != len(models.DefaultGenres)+1 {
		t.Fatalf("genres = %v", resp.Genres)
	}
	if resp.Genres[len(resp.Genres)-1] != "Manga" {
		t.Errorf("last genre = %q, want Manga", resp.Genres[len(resp.Genres)-1])
	}
}

// failingCatalog accepts every change in memory and reports a failed save.
type failingCatalog struct {
	*catalog.Store
}

func (f failingCatalog) AddBook(_ context.Context, in models.NewBook) (models.Book, error) {
	b := models.Book{ID: "mem-1", Title: in.Title, Author: in.Author, PublicationYear: in.PublicationYear}
	return b, fmt.Errorf("%w: disk full", apperr.ErrNotWritable)
}

func (f failingCatalog) Dirty() bool { return true }

func TestAddBook_SaveFailure(t *testing.T) {
	store, _ := testutil.TestStore(t)
	cat := failingCatalog{Store: store}
	router := NewRouter(cat, nil, false, "", nil, 0)

	w := do(t, router, http.MethodPost, "/books", map[string]any{"title": "T", "author": "A", "publication_year": 2000})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp SaveFailureResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Persisted {
		t.Error("persisted should be false")
	}
	if resp.Book == nil || resp.Book.ID != "mem-1" {
		t.Errorf("book = %+v, want the in-memory record", resp.Book)
	}
	if !strings.Contains(w.Body.String(), `"persisted":false`) {
		t.Errorf("body missing persisted flag: %s", w.Body.String())
	}

	r := chi.NewRouter()
	MountHealth(r, cat)
	w = do(t, r, http.MethodGet, "/health/ready", nil)
	var health HealthResponse
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if !health.Dirty || health.Status != "degraded" {
		t.Errorf("ready = %+v, want dirty", health)
	}
}

func TestAddBook_UnwritableDocument(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	store, path := testutil.TestStore(t)
	router := NewRouter(store, nil, false, "", nil, time.Second)

	dir := filepath.Dir(path)
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	w := do(t, router, http.MethodPost, "/books", map[string]any{"title": "T", "author": "A", "publication_year": 2000})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500; body = %s", w.Code, w.Body.String())
	}
	if !store.Dirty() {
		t.Error("store should be dirty")
	}
	if store.Len() != 1 {
		t.Errorf("in-memory len = %d, want 1", store.Len())
	}
}

func TestHealth(t *testing.T) {
	store, _ := testutil.TestStore(t)
	r := chi.NewRouter()
	MountHealth(r, store)

	w := do(t, r, http.MethodGet, "/health/live", nil)
	if w.Code != http.StatusOK {
		t.Errorf("live = %d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/health/ready", nil)
	var health HealthResponse
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if health.Status != "ok" || health.Dirty {
		t.Errorf("ready = %+v", health)
	}
}

func TestWriteTimeout_BoundsContext(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := WriteTimeout(50 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !ok {
		t.Fatal("expected a deadline")
	}
	if time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline too far: %v", time.Until(deadline))
	}

	ok = false
	WriteTimeout(0)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if ok {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/books", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	store, _ := testutil.TestStore(t)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(store, nil, authEnabled, token, sseHandler, 0)
}
