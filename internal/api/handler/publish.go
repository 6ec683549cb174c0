package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/remiblancher/crl-engine/internal/api/errors"
	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/engine"
)

// PublishHandler serves active CRLs to relying parties, making the
// engine itself usable as a distribution point.
type PublishHandler struct {
	engine *engine.Engine
}

// NewPublishHandler creates a new PublishHandler.
func NewPublishHandler(eng *engine.Engine) *PublishHandler {
	return &PublishHandler{engine: eng}
}

// ActiveCRL handles GET /crl/{ca}.crl. The response is the active CRL's
// DER artifact with RFC 5280 freshness exposed through HTTP caching
// headers: the artifact is valid until its nextUpdate.
func (h *PublishHandler) ActiveCRL(w http.ResponseWriter, r *http.Request) {
	caID := chi.URLParam(r, "ca")

	c, err := h.engine.Store.ActiveCRL(r.Context(), caID)
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, apierrors.NewNotFound("active CRL", caID))
		return
	}
	if !c.Signed {
		status, apiErr := apierrors.MapError(fmt.Errorf("%w: %s", crl.ErrUnsigned, c.ID))
		respondError(w, status, apiErr)
		return
	}

	w.Header().Set("Content-Type", "application/pkix-crl")
	w.Header().Set("ETag", fmt.Sprintf("%q", c.ID))
	w.Header().Set("Last-Modified", c.ThisUpdate.UTC().Format(http.TimeFormat))
	w.Header().Set("Expires", c.NextUpdate.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.Raw)
}
