package dto

import (
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
)

// GenerateRequest is the body of POST /api/v1/cas/{ca}/crls.
type GenerateRequest struct {
	// Trigger records what initiated the request. Defaults to "manual".
	Trigger string `json:"trigger,omitempty"`

	// ValidityHours overrides the configured validity window when > 0.
	ValidityHours int `json:"validity_hours,omitempty"`

	// Force bypasses the not-yet-due check.
	Force bool `json:"force,omitempty"`

	// RequestedBy identifies the caller for the audit trail.
	RequestedBy string `json:"requested_by,omitempty"`
}

// CRLSummary is the list-view projection of a stored CRL. It omits the
// entry list and the raw artifact.
type CRLSummary struct {
	ID                 string    `json:"id"`
	CAID               string    `json:"ca_id"`
	Number             int64     `json:"number"`
	Status             string    `json:"status"`
	Signed             bool      `json:"signed"`
	SignatureAlgorithm string    `json:"signature_algorithm,omitempty"`
	EntryCount         int       `json:"entry_count"`
	Size               int       `json:"size"`
	ThisUpdate         time.Time `json:"this_update"`
	NextUpdate         time.Time `json:"next_update"`
	GeneratedAt        time.Time `json:"generated_at"`
	Trigger            string    `json:"trigger,omitempty"`
}

// NewCRLSummary projects a CRL into its list view.
func NewCRLSummary(c *crl.CRL) CRLSummary {
	return CRLSummary{
		ID:                 c.ID,
		CAID:               c.CAID,
		Number:             c.Number,
		Status:             string(c.Status),
		Signed:             c.Signed,
		SignatureAlgorithm: c.SignatureAlgorithm,
		EntryCount:         len(c.Entries),
		Size:               c.Size,
		ThisUpdate:         c.ThisUpdate,
		NextUpdate:         c.NextUpdate,
		GeneratedAt:        c.GeneratedAt,
		Trigger:            string(c.Trigger),
	}
}

// CRLListResponse wraps a CRL listing.
type CRLListResponse struct {
	CRLs  []CRLSummary `json:"crls"`
	Total int          `json:"total"`
}

// CleanupRequest is the body of POST /api/v1/cas/{ca}/cleanup.
type CleanupRequest struct {
	// RetentionHours keeps expired CRLs newer than this many hours.
	RetentionHours int `json:"retention_hours"`
}

// CleanupResponse reports how many CRLs were removed.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

// SweepResponse reports how many CRLs were expired by a sweep.
type SweepResponse struct {
	Expired int `json:"expired"`
}
