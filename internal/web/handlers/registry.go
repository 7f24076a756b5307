package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-gallery/internal/registry"
)

// RegistryHandler exposes the recognition audit log.
type RegistryHandler struct {
	registry *registry.Registry
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(reg *registry.Registry) *RegistryHandler {
	return &RegistryHandler{registry: reg}
}

// List returns the full log, newest first.
func (h *RegistryHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"items": h.registry.List()})
}
