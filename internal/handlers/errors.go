package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/crucial707/radar/internal/service"
	"github.com/go-chi/chi/v5"
)

// ErrMessageInternal is the generic message for 500 responses. Do not expose internal details to clients.
const ErrMessageInternal = "internal server error"

// JSONError sends a JSON error response with a single "error" field.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONValidationError sends a JSON error response with "error" and optional "fields" for field-level details.
// status is typically http.StatusBadRequest (400).
func JSONValidationError(w http.ResponseWriter, message string, fields map[string]string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	out := map[string]interface{}{"error": message}
	if len(fields) > 0 {
		out["fields"] = fields
	}
	json.NewEncoder(w).Encode(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service error kinds to status codes. Duplicate
// usernames and emails are reported as 400, like other bad input.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		JSONValidationError(w, "validation failed", verr.Fields, http.StatusBadRequest)
		return
	}

	msg := ErrMessageInternal
	var serr *service.Error
	if errors.As(err, &serr) {
		msg = serr.Msg
	}

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		JSONError(w, msg, http.StatusUnauthorized)
	case errors.Is(err, service.ErrForbidden):
		JSONError(w, msg, http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		JSONError(w, msg, http.StatusNotFound)
	case errors.Is(err, service.ErrConflict):
		JSONError(w, msg, http.StatusBadRequest)
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
	}
}

// decodeJSON reads a JSON body. It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			JSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// intParam parses a positive integer chi URL parameter.
func intParam(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
