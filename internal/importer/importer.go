package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/models"
)

// Adder adds one book to a catalog. *catalog.Store satisfies it.
type Adder interface {
	AddBook(ctx context.Context, in models.NewBook) (models.Book, error)
}

// RowError records a rejected row. Row is 1-based.
type RowError struct {
	Row   int    `json:"row"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Report summarises an import.
type Report struct {
	Added  []models.Book `json:"added"`
	Failed []RowError    `json:"failed"`
}

// Import adds items in order. Rows that fail validation are recorded and
// skipped. A save failure or a cancelled context stops the import; the
// report then covers the rows handled so far.
func Import(ctx context.Context, cat Adder, items []models.NewBook, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rep := Report{Added: []models.Book{}, Failed: []RowError{}}
	for i, in := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		book, err := cat.AddBook(ctx, in)
		if err != nil {
			var verr *apperr.ValidationError
			if errors.As(err, &verr) {
				rep.Failed = append(rep.Failed, RowError{
					Row:   i + 1,
					Title: in.Title,
					Kind:  string(verr.Kind),
					Error: verr.Error(),
				})
				logger.Warn("import row rejected",
					slog.Int("row", i+1),
					slog.String("title", in.Title),
					slog.String("error", err.Error()))
				continue
			}
			return rep, fmt.Errorf("importer: row %d: %w", i+1, err)
		}
		rep.Added = append(rep.Added, book)
	}
	logger.Info("import finished",
		slog.Int("added", len(rep.Added)),
		slog.Int("failed", len(rep.Failed)))
	return rep, nil
}

// ImportFile reads path, parses it in format (inferred from the extension
// when empty) and imports the result.
func ImportFile(ctx context.Context, cat Adder, path string, format Format, logger *slog.Logger) (Report, error) {
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return Report{}, err
		}
		format = f
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("importer: read %s: %w", path, err)
	}
	items, err := Parse(data, format)
	if err != nil {
		return Report{}, err
	}
	return Import(ctx, cat, items, logger)
}
