package stats

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/store"
)

func TestCAStats(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Now().UTC()

	first := &crl.CRL{ID: "c1", CAID: "ca1", Number: 1, Size: 400, NextUpdate: now.Add(time.Hour), GeneratedAt: now.Add(-time.Hour)}
	require.NoError(t, st.SaveCRL(ctx, first))
	second := &crl.CRL{
		ID: "c2", CAID: "ca1", Number: 2,
		Entries:     []crl.Entry{{Serial: "01"}, {Serial: "02"}},
		Size:        600,
		NextUpdate:  now.Add(168 * time.Hour),
		GeneratedAt: now,
	}
	require.NoError(t, st.SaveCRL(ctx, second))

	require.NoError(t, st.SavePoint(ctx, &crl.DistributionPoint{
		ID: "p1", CAID: "ca1", URL: "https://crl.example.com/ca1.crl",
		Enabled: true, SuccessCount: 3, FailureCount: 1,
	}))

	tally := &GenerationTally{}
	tally.Record("ca1", true)
	tally.Record("ca1", true)
	tally.Record("ca1", false)
	tally.Record("other-ca", false)

	c := &Collector{Store: st, Tally: tally}
	got, err := c.CAStats(ctx, "ca1", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, got.TotalCRLs)
	assert.Equal(t, 1, got.SupersededCRLs)
	assert.Equal(t, int64(500), got.AvgSizeBytes)
	assert.Equal(t, int64(3), got.GenerationAttempts)
	assert.Equal(t, int64(2), got.GenerationSuccesses)
	assert.InDelta(t, 2.0/3.0, got.GenerationSuccessRate, 1e-9)
	assert.Equal(t, "c2", got.ActiveCRLID)
	assert.Equal(t, int64(2), got.ActiveNumber)
	assert.Equal(t, 2, got.ActiveEntries)
	require.NotNil(t, got.NextDue)
	assert.Equal(t, second.NextUpdate.Add(-2*time.Hour), *got.NextDue)

	require.Len(t, got.Points, 1)
	assert.InDelta(t, 0.75, got.Points[0].SuccessRate, 1e-9)
}

func TestCAStatsEmptyCA(t *testing.T) {
	c := &Collector{Store: store.NewMemoryStore()}
	got, err := c.CAStats(context.Background(), "nothing", 2)
	require.NoError(t, err)
	assert.Zero(t, got.TotalCRLs)
	assert.Empty(t, got.ActiveCRLID)
	assert.Nil(t, got.NextDue)
}

func TestCAStatsWithoutTally(t *testing.T) {
	c := &Collector{Store: store.NewMemoryStore()}
	got, err := c.CAStats(context.Background(), "ca1", 2)
	require.NoError(t, err)
	assert.Zero(t, got.GenerationAttempts)
	assert.Zero(t, got.GenerationSuccessRate)
}

func TestAggregate(t *testing.T) {
	agg := Aggregate([]*CAStats{
		{
			CAID: "ca1", TotalCRLs: 2, SupersededCRLs: 1, AvgSizeBytes: 500,
			GenerationAttempts: 2, GenerationSuccesses: 2,
			Points: []PointStats{{PointID: "p1"}},
		},
		{
			CAID: "ca2", TotalCRLs: 1, ExpiredCRLs: 1, AvgSizeBytes: 200,
			GenerationAttempts: 2, GenerationSuccesses: 1,
		},
	})

	assert.Empty(t, agg.CAID)
	assert.Equal(t, 3, agg.TotalCRLs)
	assert.Equal(t, 1, agg.SupersededCRLs)
	assert.Equal(t, 1, agg.ExpiredCRLs)
	// (2*500 + 1*200) / 3
	assert.Equal(t, int64(400), agg.AvgSizeBytes)
	assert.Equal(t, int64(4), agg.GenerationAttempts)
	assert.Equal(t, int64(3), agg.GenerationSuccesses)
	assert.InDelta(t, 0.75, agg.GenerationSuccessRate, 1e-9)
	assert.Len(t, agg.Points, 1)
	assert.Empty(t, agg.ActiveCRLID, "active fields have no aggregate meaning")

	empty := Aggregate(nil)
	assert.Zero(t, empty.TotalCRLs)
	assert.Zero(t, empty.GenerationSuccessRate)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveGeneration("ca1", crl.TriggerScheduled, true, 0.2)
	m.ObserveGeneration("ca1", crl.TriggerManual, false, 0)
	m.SetActive(&crl.CRL{CAID: "ca1", Number: 12, Entries: []crl.Entry{{Serial: "01"}}})
	m.ObserveDistribution("ca1", 2, 1)
	m.ObserveSweep(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.generated.WithLabelValues("ca1", "scheduled", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.generated.WithLabelValues("ca1", "manual", "failure")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.activeNumber.WithLabelValues("ca1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.distributions.WithLabelValues("ca1", "success")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.expiredSwept))

	// Nil receiver is a no-op, not a panic.
	var nilMetrics *Metrics
	nilMetrics.ObserveGeneration("ca1", crl.TriggerManual, true, 0)
	nilMetrics.SetActive(&crl.CRL{CAID: "ca1"})
}
