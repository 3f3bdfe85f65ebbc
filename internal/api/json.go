package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeStoreError maps catalog errors onto HTTP responses. book is the record
// the failed call returned, if any; it is echoed back on save failures so the
// client can see what is held in memory.
func writeStoreError(w http.ResponseWriter, op string, book models.Book, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error: verr.Error(),
			Kind:  string(verr.Kind),
			Field: verr.Field,
		})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidField):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotWritable):
		slog.Error(op+" not persisted", slog.String("id", book.ID), slog.String("error", err.Error()))
		resp := SaveFailureResponse{Error: "catalog could not be saved", Persisted: false}
		if book.ID != "" {
			resp.Book = &book
		}
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
