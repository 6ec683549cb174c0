// Package crl implements the CRL lifecycle domain: building, signing,
// validating and exporting Certificate Revocation Lists per RFC 5280.
package crl

import (
	"time"
)

// Status is the lifecycle state of a stored CRL.
type Status string

const (
	// StatusActive marks the one CRL relying parties should fetch.
	StatusActive Status = "active"
	// StatusSuperseded marks a CRL replaced by a newer one but retained
	// as a historical record.
	StatusSuperseded Status = "superseded"
	// StatusExpired marks a CRL whose nextUpdate has passed.
	StatusExpired Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuperseded, StatusExpired:
		return true
	}
	return false
}

// Trigger identifies what initiated a generation request.
type Trigger string

const (
	TriggerScheduled  Trigger = "scheduled"
	TriggerManual     Trigger = "manual"
	TriggerRevocation Trigger = "revocation"
)

// Entry is a single revoked certificate in a CRL.
type Entry struct {
	// Serial is the certificate serial number, lowercase hex.
	Serial    string          `json:"serial" cbor:"1,keyasint"`
	RevokedAt time.Time       `json:"revoked_at" cbor:"2,keyasint"`
	Reason    RevocationReason `json:"reason" cbor:"3,keyasint"`
	// Expiry is the certificate's notAfter, used to drop entries for
	// already-expired certificates when configured to.
	Expiry time.Time `json:"expiry,omitempty" cbor:"4,keyasint,omitempty"`
}

// CRL is a finalized revocation list. Immutable once signed and persisted;
// only Status flips as the lifecycle advances.
type CRL struct {
	ID     string `json:"id" cbor:"1,keyasint"`
	CAID   string `json:"ca_id" cbor:"2,keyasint"`
	Number int64  `json:"number" cbor:"3,keyasint"`
	Issuer string `json:"issuer" cbor:"4,keyasint"`

	ThisUpdate time.Time `json:"this_update" cbor:"5,keyasint"`
	NextUpdate time.Time `json:"next_update" cbor:"6,keyasint"`

	Entries []Entry `json:"entries" cbor:"7,keyasint"`

	SignatureAlgorithm string `json:"signature_algorithm" cbor:"8,keyasint"`
	Signature          []byte `json:"signature,omitempty" cbor:"9,keyasint,omitempty"`

	// Raw is the DER encoding: the full CertificateList when signed, or
	// only the TBSCertList when produced with signing disabled.
	Raw    []byte `json:"-" cbor:"10,keyasint"`
	Signed bool   `json:"signed" cbor:"11,keyasint"`

	// ExtensionsIncluded records whether CRL number, authority key
	// identifier and IDP extensions were requested at generation time.
	ExtensionsIncluded bool `json:"extensions_included" cbor:"12,keyasint"`

	Status Status `json:"status" cbor:"13,keyasint"`
	Size   int    `json:"size" cbor:"14,keyasint"`

	GeneratedBy string    `json:"generated_by" cbor:"15,keyasint"`
	GeneratedAt time.Time `json:"generated_at" cbor:"16,keyasint"`
	Trigger     Trigger   `json:"trigger" cbor:"17,keyasint"`

	// PointIDs lists the distribution points this CRL was (or should be)
	// published to.
	PointIDs []string `json:"point_ids,omitempty" cbor:"18,keyasint,omitempty"`
}

// Expired reports whether the CRL's nextUpdate has passed at now.
func (c *CRL) Expired(now time.Time) bool {
	return now.After(c.NextUpdate)
}

// DistributionPoint is a publication endpoint for CRLs. Counters are
// mutated only by the distribution engine's outcome recording.
type DistributionPoint struct {
	ID       string `json:"id" cbor:"1,keyasint"`
	CAID     string `json:"ca_id" cbor:"2,keyasint"`
	URL      string `json:"url" cbor:"3,keyasint"`
	Enabled  bool   `json:"enabled" cbor:"4,keyasint"`
	Priority int    `json:"priority" cbor:"5,keyasint"`
	// Timeout bounds a single publish to this point. Zero means the
	// distributor's default applies.
	Timeout time.Duration `json:"timeout,omitempty" cbor:"12,keyasint,omitempty"`

	SuccessCount int64      `json:"success_count" cbor:"6,keyasint"`
	FailureCount int64      `json:"failure_count" cbor:"7,keyasint"`
	LastSuccess  *time.Time `json:"last_success,omitempty" cbor:"8,keyasint,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty" cbor:"9,keyasint,omitempty"`

	// PendingCRLID is set when the last publish to this point failed and
	// a retry is owed. Cleared on success or when retries are exhausted.
	PendingCRLID string `json:"pending_crl_id,omitempty" cbor:"10,keyasint,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty" cbor:"11,keyasint,omitempty"`
}

// GenerationRequest asks the engine to produce a new CRL for a CA.
type GenerationRequest struct {
	CAID    string  `json:"ca_id"`
	Trigger Trigger `json:"trigger"`
	// Priority is a scheduling hint only; it never affects correctness.
	Priority int `json:"priority,omitempty"`
	// ValidityHours overrides the configured validity window when > 0.
	ValidityHours int `json:"validity_hours,omitempty"`
	// Force bypasses the not-yet-due check, never the enabled check.
	Force       bool   `json:"force,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// SecurityOptions control how a CRL is finalized.
type SecurityOptions struct {
	SignCRL           bool `json:"sign_crl" yaml:"sign_crl"`
	IncludeIssuer     bool `json:"include_issuer" yaml:"include_issuer"`
	IncludeExtensions bool `json:"include_extensions" yaml:"include_extensions"`
}

// ValidationResult accumulates every violation found in a stored CRL.
// Errors are fatal defects; warnings describe states (like expiry) that do
// not make the artifact corrupt.
type ValidationResult struct {
	CRLID    string   `json:"crl_id"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	Issuer     string    `json:"issuer,omitempty"`
	Number     int64     `json:"number,omitempty"`
	EntryCount int       `json:"entry_count"`
	Status     Status    `json:"status,omitempty"`
	ThisUpdate time.Time `json:"this_update,omitempty"`
	NextUpdate time.Time `json:"next_update,omitempty"`
}

func (r *ValidationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

func (r *ValidationResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
