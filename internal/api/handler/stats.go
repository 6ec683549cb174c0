package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/remiblancher/crl-engine/internal/api/errors"
	"github.com/remiblancher/crl-engine/internal/engine"
)

// StatsHandler serves per-CA statistics.
type StatsHandler struct {
	engine *engine.Engine
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(eng *engine.Engine) *StatsHandler {
	return &StatsHandler{engine: eng}
}

// Stats handles GET /api/v1/cas/{ca}/stats and GET /api/v1/stats; the
// latter has no CA parameter and yields the engine-wide aggregate.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context(), chi.URLParam(r, "ca"))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
