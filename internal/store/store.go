// Package store persists CRLs, distribution points and per-CA CRL number
// state. Implementations must make SaveCRL atomic: the new CRL becomes
// active, the previous active becomes superseded and the CRL number
// high-water mark advances in one transaction or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
)

// Store is the persistence boundary of the engine.
type Store interface {
	// SaveCRL persists a freshly generated CRL as the CA's active CRL,
	// supersedes the previous active one and commits c.Number as the
	// CA's CRL number high-water mark, all atomically.
	SaveCRL(ctx context.Context, c *crl.CRL) error

	// GetCRL returns the CRL by ID, or ErrNotFound.
	GetCRL(ctx context.Context, id string) (*crl.CRL, error)

	// ActiveCRL returns the CA's active CRL, or nil when none exists.
	ActiveCRL(ctx context.Context, caID string) (*crl.CRL, error)

	// ListCRLs returns the CA's CRLs, newest number first. A zero status
	// matches all; limit <= 0 means no limit.
	ListCRLs(ctx context.Context, caID string, status crl.Status, limit int) ([]*crl.CRL, error)

	// LastCRLNumber returns the CA's highest committed CRL number, 0
	// when no CRL was ever generated.
	LastCRLNumber(ctx context.Context, caID string) (int64, error)

	// SweepExpired marks every CRL whose nextUpdate has passed as
	// expired, clearing active status where it applies. Returns the
	// number of CRLs transitioned.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// DeleteExpiredBefore deletes the CA's expired and superseded CRLs
	// whose nextUpdate precedes cutoff. The active CRL is never deleted
	// no matter what cutoff is given.
	DeleteExpiredBefore(ctx context.Context, caID string, cutoff time.Time) (int, error)

	// SavePoint creates or replaces a distribution point record.
	SavePoint(ctx context.Context, p *crl.DistributionPoint) error

	// GetPoint returns the distribution point by ID, or ErrNotFound.
	GetPoint(ctx context.Context, id string) (*crl.DistributionPoint, error)

	// ListPoints returns the CA's distribution points ordered by
	// priority, then ID.
	ListPoints(ctx context.Context, caID string) ([]*crl.DistributionPoint, error)

	// RecordPointOutcome updates a point's counters after a publication
	// attempt. On failure the CRL is remembered for retry until
	// maxRetries attempts have been recorded; on success any pending
	// retry state is cleared.
	RecordPointOutcome(ctx context.Context, pointID, crlID string, ok bool, at time.Time, maxRetries int) error

	Close() error
}

// applyOutcome mutates a point record for one publication attempt. Shared
// by implementations so retry bookkeeping cannot drift between them.
func applyOutcome(p *crl.DistributionPoint, crlID string, ok bool, at time.Time, maxRetries int) {
	ts := at.UTC()
	if ok {
		p.SuccessCount++
		p.LastSuccess = &ts
		p.PendingCRLID = ""
		p.RetryCount = 0
		return
	}
	p.FailureCount++
	p.LastFailure = &ts
	if p.PendingCRLID == crlID {
		p.RetryCount++
	} else {
		p.PendingCRLID = crlID
		p.RetryCount = 1
	}
	if maxRetries > 0 && p.RetryCount >= maxRetries {
		// Retries exhausted; the next publication cycle starts fresh.
		p.PendingCRLID = ""
		p.RetryCount = 0
	}
}
