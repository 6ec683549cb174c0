package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/remiblancher/crl-engine/internal/api/errors"
	"github.com/remiblancher/crl-engine/internal/engine"
)

// DistributionHandler handles distribution HTTP requests.
type DistributionHandler struct {
	engine *engine.Engine
}

// NewDistributionHandler creates a new DistributionHandler.
func NewDistributionHandler(eng *engine.Engine) *DistributionHandler {
	return &DistributionHandler{engine: eng}
}

// Distribute handles POST /api/v1/crls/{id}/distribute.
func (h *DistributionHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.DistributeCRL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Retry handles POST /api/v1/cas/{ca}/retry.
func (h *DistributionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.RetryFailed(r.Context(), chi.URLParam(r, "ca"))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Points handles GET /api/v1/cas/{ca}/points.
func (h *DistributionHandler) Points(w http.ResponseWriter, r *http.Request) {
	points, err := h.engine.Store.ListPoints(r.Context(), chi.URLParam(r, "ca"))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, points)
}
