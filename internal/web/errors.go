package web

// errors.go centralizes JSON error responses. Handlers log the technical
// error server-side and the client sees a plain {"error": message} body
// with a status derived from the error's kind.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docmine/server/internal/logging"
	"github.com/docmine/server/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps err to an HTTP status and writes the JSON error body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logging.FromContext(r.Context()).Error("request error",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateSKU), errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, ErrTooManyUploads):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error with an explicit status.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
