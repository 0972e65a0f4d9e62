package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so all responses
// share one shape.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API looks like
//   {"error": "not_found", "message": "comment report not found with id ..."}
// plus "field" when one input is to blame:
//   {"error": "invalid_query", "message": "unknown sort token \"size\"", "field": "sort"}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-store/internal/apperror"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
	Field   string `json:"field,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body. Once Encode writes, the
// headers are on the wire and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// ERROR MAPPING:
//
//	ErrValidation                          → 400 validation_error
//	ErrUnknownFilterField, ErrUnknownSortToken → 400 invalid_query
//	ErrForbidden                           → 403 forbidden
//	ErrNotFound                            → 404 not_found
//	ErrConflict                            → 409 conflict
//	anything else (ErrMalformedValue, driver errors) → 500
//
// A 500 never carries the underlying message: driver errors can contain SQL,
// and a malformed stored value is our bug, not the caller's. Both are logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := 0, ""
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, errorType = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrUnknownFilterField), errors.Is(err, apperror.ErrUnknownSortToken):
			status, errorType = http.StatusBadRequest, "invalid_query"
		case errors.Is(err, apperror.ErrForbidden):
			status, errorType = http.StatusForbidden, "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status, errorType = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status, errorType = http.StatusConflict, "conflict"
		}
		if status != 0 {
			writeJSON(w, status, ErrorResponse{Error: errorType, Message: appErr.Message, Field: appErr.Field})
			return
		}
	}

	logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so a
// typo in a field name is an error instead of a silently ignored value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
