package handlers

import (
	"context"
	"net/http"
)

// ReadinessChecker reports whether the embedding capability is usable.
type ReadinessChecker interface {
	Available() bool
	Ready(ctx context.Context) bool
}

// HealthCheck handles the liveness endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthHandler handles readiness probes against the embedding server.
type HealthHandler struct {
	embedder ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(embedder ReadinessChecker) *HealthHandler {
	return &HealthHandler{embedder: embedder}
}

// Ready reports whether recognition requests can currently be served.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := h.embedder.Available() && h.embedder.Ready(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}
