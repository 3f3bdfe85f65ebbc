// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Shelf catalog tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/index"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/query"
	"github.com/starford/shelf/internal/stats"
)

const (
	bookFormatURI = "shelf://book-format"
	searchLimit   = 20
	fieldAll      = "all"
)

// Catalog is the catalog surface the tools need. *catalog.Store satisfies it.
type Catalog interface {
	AddBook(ctx context.Context, in models.NewBook) (models.Book, error)
	RemoveBook(ctx context.Context, id string) (models.Book, error)
	SetReadStatus(ctx context.Context, id string, read bool) (models.Book, error)
	Books() []models.Book
	Search(term string, field query.Field) ([]models.Book, error)
	Stats() stats.Stats
}

// FullText searches the SQLite mirror. *index.DB satisfies it.
type FullText interface {
	Search(q string, limit int) ([]index.SearchResult, error)
}

// Server wraps the MCP server with Shelf tools.
type Server struct {
	mcp *server.MCPServer
	cat Catalog
	ft  FullText
}

// New creates a new MCP server with all Shelf tools registered.
// ft may be nil; search_books then rejects field "all".
func New(cat Catalog, ft FullText, version string) *Server {
	s := &Server{cat: cat, ft: ft}

	s.mcp = server.NewMCPServer(
		"Shelf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List books in catalog order, optionally filtered by read status."),
		mcp.WithString("status", mcp.Description("Filter: read, unread or all (default)"), mcp.Enum("all", "read", "unread")),
	), s.listBooks)

	s.mcp.AddTool(mcp.NewTool("add_book",
		mcp.WithDescription("Add a book to the catalog. Read the book format via get_book_format "+
			"or the "+bookFormatURI+" resource first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Book title")),
		mcp.WithString("author", mcp.Required(), mcp.Description("Author name")),
		mcp.WithNumber("publication_year", mcp.Required(), mcp.Description("Year of publication, 1000 to the current year")),
		mcp.WithString("genre", mcp.Description("Genre; empty means Other")),
		mcp.WithBoolean("read", mcp.Description("Whether the book has been read (default false)")),
	), s.addBook)

	s.mcp.AddTool(mcp.NewTool("remove_book",
		mcp.WithDescription("Remove a book by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Book id")),
	), s.removeBook)

	s.mcp.AddTool(mcp.NewTool("set_read_status",
		mcp.WithDescription("Mark a book as read or unread."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Book id")),
		mcp.WithBoolean("read", mcp.Required(), mcp.Description("New read status")),
	), s.setReadStatus)

	s.mcp.AddTool(mcp.NewTool("search_books",
		mcp.WithDescription("Case-insensitive substring search on one field, or full-text across all fields."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search term")),
		mcp.WithString("field", mcp.Description("title (default), author, genre or all"),
			mcp.Enum("title", "author", "genre", fieldAll)),
	), s.searchBooks)

	s.mcp.AddTool(mcp.NewTool("library_stats",
		mcp.WithDescription("Totals, percentage read, and counts by genre, author and decade."),
	), s.libraryStats)

	s.mcp.AddTool(mcp.NewTool("get_book_format",
		mcp.WithDescription("Returns the Shelf book format. Call this before adding books."),
	), s.getBookFormat)

	// Resource: book format contract.
	s.mcp.AddResource(
		mcp.NewResource(bookFormatURI, "Book Format",
			mcp.WithResourceDescription("Catalog document format and book field rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBookFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// storeError turns a catalog error into a tool error the model can act on.
func storeError(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(fmt.Sprintf("invalid %s (%s): %s", verr.Field, verr.Kind, verr.Message))
	case errors.Is(err, apperr.ErrNotWritable):
		return mcp.NewToolResultError("change kept in memory but the catalog could not be saved: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listBooks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	books := s.cat.Books()
	switch status := strings.ToLower(req.GetString("status", "all")); status {
	case "", "all":
	case "read":
		books = query.FilterByStatus(books, true)
	case "unread":
		books = query.FilterByStatus(books, false)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q (want read, unread or all)", status)), nil
	}
	return jsonResult(books)
}

func (s *Server) addBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	author, err := req.RequireString("author")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	year, err := req.RequireInt("publication_year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	book, err := s.cat.AddBook(ctx, models.NewBook{
		Title:           title,
		Author:          author,
		PublicationYear: year,
		Genre:           req.GetString("genre", ""),
		ReadStatus:      req.GetBool("read", false),
	})
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(book)
}

func (s *Server) removeBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	book, err := s.cat.RemoveBook(ctx, id)
	if err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s (%s)", book.Title, book.ID)), nil
}

func (s *Server) setReadStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	read, err := req.RequireBool("read")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	book, err := s.cat.SetReadStatus(ctx, id, read)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(book)
}

func (s *Server) searchBooks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw := req.GetString("field", string(query.FieldTitle))

	if strings.EqualFold(raw, fieldAll) {
		if s.ft == nil {
			return mcp.NewToolResultError("full-text index unavailable"), nil
		}
		results, err := s.ft.Search(term, searchLimit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(results)
	}

	field, err := query.ParseField(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.cat.Search(term, field)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) libraryStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.cat.Stats())
}

func (s *Server) getBookFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BookFormatContract), nil
}

func (s *Server) readBookFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      bookFormatURI,
			MIMEType: "text/markdown",
			Text:     BookFormatContract,
		},
	}, nil
}
