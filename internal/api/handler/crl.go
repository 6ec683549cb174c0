package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/crl-engine/internal/api/dto"
	apierrors "github.com/remiblancher/crl-engine/internal/api/errors"
	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/engine"
)

// CRLHandler handles CRL lifecycle HTTP requests.
type CRLHandler struct {
	engine *engine.Engine
}

// NewCRLHandler creates a new CRLHandler.
func NewCRLHandler(eng *engine.Engine) *CRLHandler {
	return &CRLHandler{engine: eng}
}

// Generate handles POST /api/v1/cas/{ca}/crls.
func (h *CRLHandler) Generate(w http.ResponseWriter, r *http.Request) {
	caID := chi.URLParam(r, "ca")

	var req dto.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && r.ContentLength > 0 {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}

	res, err := h.engine.GenerateCRL(r.Context(), crl.GenerationRequest{
		CAID:          caID,
		Trigger:       crl.Trigger(req.Trigger),
		ValidityHours: req.ValidityHours,
		Force:         req.Force,
		RequestedBy:   req.RequestedBy,
	})
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	if !res.Generated {
		respondJSON(w, http.StatusOK, res)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// List handles GET /api/v1/cas/{ca}/crls.
func (h *CRLHandler) List(w http.ResponseWriter, r *http.Request) {
	caID := chi.URLParam(r, "ca")

	status := crl.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest,
			apierrors.NewBadRequest(fmt.Sprintf("unknown status %q", status)))
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	crls, err := h.engine.Store.ListCRLs(r.Context(), caID, status, limit)
	if err != nil {
		st, apiErr := apierrors.MapError(err)
		respondError(w, st, apiErr)
		return
	}

	resp := dto.CRLListResponse{CRLs: make([]dto.CRLSummary, 0, len(crls)), Total: len(crls)}
	for _, c := range crls {
		resp.CRLs = append(resp.CRLs, dto.NewCRLSummary(c))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/crls/{id}.
func (h *CRLHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Store.GetCRL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Validate handles POST /api/v1/crls/{id}/validate.
func (h *CRLHandler) Validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ValidateCRL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Export handles GET /api/v1/crls/{id}/export.
func (h *CRLHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := crl.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest(err.Error()))
		return
	}

	exp, err := h.engine.ExportCRL(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}

	switch format {
	case crl.FormatDER:
		w.Header().Set("Content-Type", "application/pkix-crl")
	default:
		w.Header().Set("Content-Type", "application/x-pem-file")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Data)
}

// Cleanup handles POST /api/v1/cas/{ca}/cleanup.
func (h *CRLHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req dto.CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body"))
		return
	}
	if req.RetentionHours < 0 {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("retention_hours must be non-negative"))
		return
	}

	deleted, err := h.engine.Cleanup(r.Context(), chi.URLParam(r, "ca"), hoursToDuration(req.RetentionHours))
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, dto.CleanupResponse{Deleted: deleted})
}

func hoursToDuration(h int) time.Duration {
	return time.Duration(h) * time.Hour
}

// Sweep handles POST /api/v1/sweep.
func (h *CRLHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.Sweep(r.Context())
	if err != nil {
		status, apiErr := apierrors.MapError(err)
		respondError(w, status, apiErr)
		return
	}
	respondJSON(w, http.StatusOK, dto.SweepResponse{Expired: count})
}
