package catalog

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/models"
)

// validateNewBook checks a normalized input. Fields are checked in a fixed
// order so the first failure is deterministic.
func validateNewBook(in models.NewBook, now time.Time) error {
	checks := []struct {
		field string
		kind  apperr.ValidationKind
		value any
		rules []validation.Rule
	}{
		{"title", apperr.EmptyField, in.Title, []validation.Rule{
			validation.Required.Error("must not be empty"),
		}},
		{"author", apperr.EmptyField, in.Author, []validation.Rule{
			validation.Required.Error("must not be empty"),
		}},
		{"publication_year", apperr.InvalidYear, in.PublicationYear, []validation.Rule{
			validation.Required.Error("is required"),
			validation.Min(models.MinPublicationYear).Error("must be no earlier than {{.threshold}}"),
			validation.Max(now.Year()).Error("must be no later than {{.threshold}}"),
		}},
	}
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			return &apperr.ValidationError{Kind: c.kind, Field: c.field, Message: err.Error()}
		}
	}
	return nil
}
