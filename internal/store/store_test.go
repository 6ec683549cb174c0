package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/remiblancher/crl-engine/internal/crl"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "crl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]Store{
		"bbolt":  bolt,
		"memory": NewMemoryStore(),
	}
}

func testCRL(caID string, number int64, nextUpdate time.Time) *crl.CRL {
	now := time.Now().UTC()
	return &crl.CRL{
		ID:                 uuid.New().String(),
		CAID:               caID,
		Number:             number,
		Issuer:             "CN=" + caID,
		ThisUpdate:         now,
		NextUpdate:         nextUpdate,
		SignatureAlgorithm: "ed25519",
		Signature:          []byte{1, 2, 3},
		Raw:                []byte{0x30, 0x03, 0x02, 0x01, 0x01},
		Signed:             true,
		Status:             crl.StatusActive,
		GeneratedAt:        now,
		Trigger:            crl.TriggerManual,
	}
}

func TestSaveCRLSupersedesActive(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			later := time.Now().Add(168 * time.Hour)

			first := testCRL("ca1", 1, later)
			require.NoError(t, s.SaveCRL(ctx, first))

			active, err := s.ActiveCRL(ctx, "ca1")
			require.NoError(t, err)
			require.NotNil(t, active)
			assert.Equal(t, first.ID, active.ID)

			second := testCRL("ca1", 2, later)
			require.NoError(t, s.SaveCRL(ctx, second))

			active, err = s.ActiveCRL(ctx, "ca1")
			require.NoError(t, err)
			assert.Equal(t, second.ID, active.ID)

			old, err := s.GetCRL(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, crl.StatusSuperseded, old.Status)

			// Exactly one active CRL at any time.
			actives, err := s.ListCRLs(ctx, "ca1", crl.StatusActive, 0)
			require.NoError(t, err)
			assert.Len(t, actives, 1)

			n, err := s.LastCRLNumber(ctx, "ca1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
		})
	}
}

func TestActiveCRLIsPerCA(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			later := time.Now().Add(time.Hour)
			require.NoError(t, s.SaveCRL(ctx, testCRL("ca1", 1, later)))
			require.NoError(t, s.SaveCRL(ctx, testCRL("ca2", 5, later)))

			a1, err := s.ActiveCRL(ctx, "ca1")
			require.NoError(t, err)
			a2, err := s.ActiveCRL(ctx, "ca2")
			require.NoError(t, err)
			assert.Equal(t, int64(1), a1.Number)
			assert.Equal(t, int64(5), a2.Number)

			n, err := s.LastCRLNumber(ctx, "ca2")
			require.NoError(t, err)
			assert.Equal(t, int64(5), n)
		})
	}
}

func TestGetCRLNotFound(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetCRL(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSweepExpired(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			stale := testCRL("ca1", 1, now.Add(-time.Hour))
			require.NoError(t, s.SaveCRL(ctx, stale))
			fresh := testCRL("ca2", 1, now.Add(time.Hour))
			require.NoError(t, s.SaveCRL(ctx, fresh))

			count, err := s.SweepExpired(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			got, err := s.GetCRL(ctx, stale.ID)
			require.NoError(t, err)
			assert.Equal(t, crl.StatusExpired, got.Status)

			// The expired CRL is no longer active.
			active, err := s.ActiveCRL(ctx, "ca1")
			require.NoError(t, err)
			assert.Nil(t, active)

			// Sweeping again is a no-op.
			count, err = s.SweepExpired(ctx, now)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestDeleteExpiredBeforeKeepsActive(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			old := testCRL("ca1", 1, now.Add(-48*time.Hour))
			require.NoError(t, s.SaveCRL(ctx, old))
			current := testCRL("ca1", 2, now.Add(time.Hour))
			require.NoError(t, s.SaveCRL(ctx, current))
			_, err := s.SweepExpired(ctx, now)
			require.NoError(t, err)

			// Cutoff far in the future: everything retired qualifies,
			// but the active CRL must survive.
			count, err := s.DeleteExpiredBefore(ctx, "ca1", now.Add(1000*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			_, err = s.GetCRL(ctx, old.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			active, err := s.ActiveCRL(ctx, "ca1")
			require.NoError(t, err)
			require.NotNil(t, active)
			assert.Equal(t, current.ID, active.ID)
		})
	}
}

func TestDeleteExpiredBeforeSkipsUnreadableRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "crl.db"))
	require.NoError(t, err)
	defer s.Close()

	victim := testCRL("ca1", 1, now.Add(-48*time.Hour))
	require.NoError(t, s.SaveCRL(ctx, victim))
	damaged := testCRL("ca1", 2, now.Add(-48*time.Hour))
	require.NoError(t, s.SaveCRL(ctx, damaged))
	current := testCRL("ca1", 3, now.Add(time.Hour))
	require.NoError(t, s.SaveCRL(ctx, current))
	_, err = s.SweepExpired(ctx, now)
	require.NoError(t, err)

	// Overwrite one record with bytes that no longer decode.
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCRLs).Put([]byte(damaged.ID), []byte{0xff})
	}))

	// The unreadable record must not abort the run: the other retired
	// CRL is still deleted and the active one survives.
	count, err := s.DeleteExpiredBefore(ctx, "ca1", now.Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.GetCRL(ctx, victim.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := s.ActiveCRL(ctx, "ca1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, current.ID, active.ID)
}

func TestPointsOrderingAndOutcomes(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SavePoint(ctx, &crl.DistributionPoint{ID: "p2", CAID: "ca1", URL: "https://b.example.com/crl", Enabled: true, Priority: 2}))
			require.NoError(t, s.SavePoint(ctx, &crl.DistributionPoint{ID: "p1", CAID: "ca1", URL: "https://a.example.com/crl", Enabled: true, Priority: 1}))

			points, err := s.ListPoints(ctx, "ca1")
			require.NoError(t, err)
			require.Len(t, points, 2)
			assert.Equal(t, "p1", points[0].ID)

			at := time.Now().UTC()
			require.NoError(t, s.RecordPointOutcome(ctx, "p1", "crl-1", false, at, 3))
			p, err := s.GetPoint(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), p.FailureCount)
			assert.Equal(t, "crl-1", p.PendingCRLID)
			assert.Equal(t, 1, p.RetryCount)

			require.NoError(t, s.RecordPointOutcome(ctx, "p1", "crl-1", true, at, 3))
			p, err = s.GetPoint(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), p.SuccessCount)
			assert.Empty(t, p.PendingCRLID)
			assert.Zero(t, p.RetryCount)
		})
	}
}

func TestRetryExhaustionClearsPending(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SavePoint(ctx, &crl.DistributionPoint{ID: "p1", CAID: "ca1", URL: "https://a.example.com/crl", Enabled: true}))

			at := time.Now().UTC()
			for i := 0; i < 3; i++ {
				require.NoError(t, s.RecordPointOutcome(ctx, "p1", "crl-9", false, at, 3))
			}
			p, err := s.GetPoint(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, int64(3), p.FailureCount)
			assert.Empty(t, p.PendingCRLID, "pending state clears once retries are exhausted")
		})
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crl.db")
	ctx := context.Background()

	s, err := OpenBolt(path)
	require.NoError(t, err)
	c := testCRL("ca1", 3, time.Now().Add(time.Hour))
	require.NoError(t, s.SaveCRL(ctx, c))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetCRL(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Number, got.Number)
	assert.Equal(t, c.Raw, got.Raw)

	n, err := s.LastCRLNumber(ctx, "ca1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
