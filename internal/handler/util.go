package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/threadline-ai/agent-chat/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeStoreError maps store errors onto HTTP statuses. Ownership failures
// surface as 404 so chat existence is not leaked across users.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusNotFound, "chat not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
