// Package apperr defines the error values shared across Shelf packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidField = errors.New("invalid search field")
	ErrNotWritable  = errors.New("catalog not writable")
	ErrNotReadable  = errors.New("catalog not readable")
	ErrCorrupt      = errors.New("catalog document corrupt")
)

// ValidationKind classifies a rejected book input.
type ValidationKind string

const (
	EmptyField  ValidationKind = "EmptyField"
	InvalidYear ValidationKind = "InvalidYear"
)

// ValidationError describes why a book input was rejected.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
