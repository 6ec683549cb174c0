package crl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RevocationSource yields the certificates currently revoked for a CA.
type RevocationSource interface {
	RevokedCertificates(ctx context.Context, caID string, includeExpired bool) ([]Entry, error)
}

// NumberSource provides the data the builder needs from persistent state:
// the high-water CRL number and the current active CRL.
type NumberSource interface {
	LastCRLNumber(ctx context.Context, caID string) (int64, error)
	ActiveCRL(ctx context.Context, caID string) (*CRL, error)
}

// BuildParams are the per-CA knobs resolved from configuration before a
// build. The builder itself never reads configuration.
type BuildParams struct {
	ValidityHours  int
	OverlapHours   int
	IncludeExpired bool
	PointIDs       []string
	PointURLs      []string
}

// Unsigned is a fully assembled CRL awaiting signature. It is handed to
// the Signer exactly once and never mutated afterwards.
type Unsigned struct {
	ID          string
	CAID        string
	Number      int64
	ThisUpdate  time.Time
	NextUpdate  time.Time
	Entries     []Entry
	Trigger     Trigger
	RequestedBy string
	PointIDs    []string
	PointURLs   []string
}

// Builder assembles unsigned CRLs: it decides whether generation is due,
// allocates the next CRL number and collects the revoked set.
type Builder struct {
	Source RevocationSource
	Store  NumberSource
	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func (b *Builder) now() time.Time {
	if b.Clock != nil {
		return b.Clock().UTC()
	}
	return time.Now().UTC()
}

// Due reports whether a new CRL is needed for the CA: true when no active
// CRL exists, or when now has entered the overlap window before the active
// CRL's nextUpdate.
func (b *Builder) Due(ctx context.Context, caID string, overlapHours int) (bool, error) {
	active, err := b.Store.ActiveCRL(ctx, caID)
	if err != nil {
		return false, err
	}
	if active == nil {
		return true, nil
	}
	threshold := active.NextUpdate.Add(-time.Duration(overlapHours) * time.Hour)
	return !b.now().Before(threshold), nil
}

// Build assembles an unsigned CRL for the request. It returns ErrNotDue
// when the active CRL is still fresh and the request did not force
// generation. No CRL number is consumed on any error path: the number is
// only read here and committed when the store persists the signed result.
func (b *Builder) Build(ctx context.Context, req GenerationRequest, p BuildParams) (*Unsigned, error) {
	if req.CAID == "" {
		return nil, &ConfigurationError{Field: "ca_id", Reason: "must not be empty"}
	}
	if p.ValidityHours <= 0 {
		return nil, &ConfigurationError{Field: "validity_hours", Reason: "must be positive"}
	}
	if p.OverlapHours < 0 || p.OverlapHours >= p.ValidityHours {
		return nil, &ConfigurationError{Field: "overlap_hours", Reason: "must be non-negative and smaller than validity"}
	}

	if !req.Force {
		due, err := b.Due(ctx, req.CAID, p.OverlapHours)
		if err != nil {
			return nil, err
		}
		if !due {
			return nil, fmt.Errorf("%w: CA %s", ErrNotDue, req.CAID)
		}
	}

	last, err := b.Store.LastCRLNumber(ctx, req.CAID)
	if err != nil {
		return nil, fmt.Errorf("read CRL number for CA %s: %w", req.CAID, err)
	}

	entries, err := b.Source.RevokedCertificates(ctx, req.CAID, p.IncludeExpired)
	if err != nil {
		return nil, fmt.Errorf("read revocations for CA %s: %w", req.CAID, err)
	}

	now := b.now()
	validity := p.ValidityHours
	if req.ValidityHours > 0 {
		validity = req.ValidityHours
	}

	u := &Unsigned{
		ID:          uuid.New().String(),
		CAID:        req.CAID,
		Number:      last + 1,
		ThisUpdate:  now,
		NextUpdate:  now.Add(time.Duration(validity) * time.Hour),
		Entries:     normalizeEntries(entries, p.IncludeExpired, now),
		Trigger:     req.Trigger,
		RequestedBy: req.RequestedBy,
		PointIDs:    p.PointIDs,
		PointURLs:   p.PointURLs,
	}
	return u, nil
}

// normalizeEntries deduplicates by serial, drops removeFromCRL entries and
// (unless includeExpired) entries for certificates already past expiry, and
// sorts by serial so successive CRLs over the same set are stable.
func normalizeEntries(entries []Entry, includeExpired bool, now time.Time) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Serial == "" || seen[e.Serial] {
			continue
		}
		if e.Reason == ReasonRemoveFromCRL {
			continue
		}
		if !includeExpired && !e.Expiry.IsZero() && now.After(e.Expiry) {
			continue
		}
		seen[e.Serial] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}
