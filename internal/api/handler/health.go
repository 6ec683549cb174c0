// Package handler provides HTTP handlers for the REST API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/remiblancher/crl-engine/internal/api/dto"
	"github.com/remiblancher/crl-engine/internal/store"
)

// HealthHandler handles health and readiness endpoints.
type HealthHandler struct {
	version  string
	instance string
	store    store.Store
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(version, instance string, st store.Store) *HealthHandler {
	return &HealthHandler{
		version:  version,
		instance: instance,
		store:    st,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Instance: h.instance,
	}
	respondJSON(w, http.StatusOK, resp)
}

// Ready handles GET /ready. Readiness requires the store to answer.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"store": h.storeReady(r.Context()),
	}

	allReady := true
	for _, ready := range checks {
		if !ready {
			allReady = false
			break
		}
	}

	resp := dto.ReadyResponse{
		Ready:  allReady,
		Checks: checks,
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}

func (h *HealthHandler) storeReady(ctx context.Context) bool {
	if h.store == nil {
		return false
	}
	_, err := h.store.ListCRLs(ctx, "", "", 1)
	return err == nil
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, apiErr *dto.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErr)
}
