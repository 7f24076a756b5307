package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondGalleryError maps the gallery and embedder error taxonomy onto
// HTTP statuses: missing resource is 404, bad input is 400, an absent
// embedding capability is 500.
func respondGalleryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gallery.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gallery.ErrNotAllowed), errors.Is(err, gallery.ErrNoFace):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedder.ErrUnavailable):
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
