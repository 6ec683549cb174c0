// Package stats computes per-CA CRL statistics and exposes Prometheus
// metrics for the engine.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/store"
)

// PointStats summarizes one distribution point's delivery history.
type PointStats struct {
	PointID      string     `json:"point_id"`
	URL          string     `json:"url"`
	Enabled      bool       `json:"enabled"`
	SuccessCount int64      `json:"success_count"`
	FailureCount int64      `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	PendingCRLID string     `json:"pending_crl_id,omitempty"`
}

// CAStats is the per-CA statistics snapshot. An engine-wide aggregate
// uses the same shape with an empty CAID and no active-CRL fields.
type CAStats struct {
	CAID            string       `json:"ca_id,omitempty"`
	TotalCRLs       int          `json:"total_crls"`
	SupersededCRLs  int          `json:"superseded_crls"`
	ExpiredCRLs     int          `json:"expired_crls"`
	AvgSizeBytes    int64        `json:"avg_size_bytes"`
	ActiveCRLID     string       `json:"active_crl_id,omitempty"`
	ActiveNumber    int64        `json:"active_number,omitempty"`
	ActiveEntries   int          `json:"active_entries,omitempty"`
	LastGeneratedAt *time.Time   `json:"last_generated_at,omitempty"`
	NextUpdate      *time.Time   `json:"next_update,omitempty"`
	// NextDue is when the overlap window opens and a scheduled
	// generation becomes due.
	NextDue *time.Time   `json:"next_due,omitempty"`
	Points  []PointStats `json:"points,omitempty"`

	// Generation counters cover this process's lifetime. The rate is
	// successes over attempts; zero attempts means rate 0.
	GenerationAttempts    int64   `json:"generation_attempts"`
	GenerationSuccesses   int64   `json:"generation_successes"`
	GenerationSuccessRate float64 `json:"generation_success_rate"`
}

// GenerationTally counts generation outcomes per CA. The zero value is
// ready to use; methods are safe for concurrent use.
type GenerationTally struct {
	mu     sync.Mutex
	counts map[string]*tally
}

type tally struct {
	attempts  int64
	successes int64
}

// Record adds one generation attempt and its outcome for the CA.
func (t *GenerationTally) Record(caID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[string]*tally)
	}
	c, found := t.counts[caID]
	if !found {
		c = &tally{}
		t.counts[caID] = c
	}
	c.attempts++
	if ok {
		c.successes++
	}
}

// Counts returns the CA's attempt and success counters.
func (t *GenerationTally) Counts(caID string) (attempts, successes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, found := t.counts[caID]; found {
		return c.attempts, c.successes
	}
	return 0, 0
}

// Collector derives statistics from the store. Tally, when set,
// supplies per-CA generation counters.
type Collector struct {
	Store store.Store
	Tally *GenerationTally
}

// CAStats computes the CA's snapshot. overlapHours is the CA's configured
// overlap window, used to derive NextDue.
func (c *Collector) CAStats(ctx context.Context, caID string, overlapHours int) (*CAStats, error) {
	out := &CAStats{CAID: caID}

	crls, err := c.Store.ListCRLs(ctx, caID, "", 0)
	if err != nil {
		return nil, err
	}
	out.TotalCRLs = len(crls)
	var sizeSum int64
	for _, item := range crls {
		sizeSum += int64(item.Size)
		switch item.Status {
		case crl.StatusSuperseded:
			out.SupersededCRLs++
		case crl.StatusExpired:
			out.ExpiredCRLs++
		}
	}
	if out.TotalCRLs > 0 {
		out.AvgSizeBytes = sizeSum / int64(out.TotalCRLs)
	}

	if c.Tally != nil {
		out.GenerationAttempts, out.GenerationSuccesses = c.Tally.Counts(caID)
		if out.GenerationAttempts > 0 {
			out.GenerationSuccessRate = float64(out.GenerationSuccesses) / float64(out.GenerationAttempts)
		}
	}

	active, err := c.Store.ActiveCRL(ctx, caID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		out.ActiveCRLID = active.ID
		out.ActiveNumber = active.Number
		out.ActiveEntries = len(active.Entries)
		gen := active.GeneratedAt
		out.LastGeneratedAt = &gen
		next := active.NextUpdate
		out.NextUpdate = &next
		due := active.NextUpdate.Add(-time.Duration(overlapHours) * time.Hour)
		out.NextDue = &due
	}

	points, err := c.Store.ListPoints(ctx, caID)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		ps := PointStats{
			PointID:      p.ID,
			URL:          p.URL,
			Enabled:      p.Enabled,
			SuccessCount: p.SuccessCount,
			FailureCount: p.FailureCount,
			LastSuccess:  p.LastSuccess,
			LastFailure:  p.LastFailure,
			PendingCRLID: p.PendingCRLID,
		}
		if total := p.SuccessCount + p.FailureCount; total > 0 {
			ps.SuccessRate = float64(p.SuccessCount) / float64(total)
		}
		out.Points = append(out.Points, ps)
	}
	return out, nil
}

// Aggregate folds per-CA snapshots into one engine-wide summary.
// Active-CRL fields stay zero: they only make sense for a single CA.
func Aggregate(snapshots []*CAStats) *CAStats {
	out := &CAStats{}
	var sizeSum int64
	for _, s := range snapshots {
		out.TotalCRLs += s.TotalCRLs
		out.SupersededCRLs += s.SupersededCRLs
		out.ExpiredCRLs += s.ExpiredCRLs
		out.GenerationAttempts += s.GenerationAttempts
		out.GenerationSuccesses += s.GenerationSuccesses
		sizeSum += s.AvgSizeBytes * int64(s.TotalCRLs)
		out.Points = append(out.Points, s.Points...)
	}
	if out.TotalCRLs > 0 {
		out.AvgSizeBytes = sizeSum / int64(out.TotalCRLs)
	}
	if out.GenerationAttempts > 0 {
		out.GenerationSuccessRate = float64(out.GenerationSuccesses) / float64(out.GenerationAttempts)
	}
	return out
}
