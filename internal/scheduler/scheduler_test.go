package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/crl-engine/internal/config"
	"github.com/remiblancher/crl-engine/internal/crl"
	pkicrypto "github.com/remiblancher/crl-engine/internal/crypto"
	"github.com/remiblancher/crl-engine/internal/distribution"
	"github.com/remiblancher/crl-engine/internal/engine"
	"github.com/remiblancher/crl-engine/internal/revocation"
	"github.com/remiblancher/crl-engine/internal/signing"
	"github.com/remiblancher/crl-engine/internal/store"
)

func newTestScheduler(t *testing.T, cas map[string]*config.CAConfig) (*Scheduler, *engine.Engine) {
	t.Helper()

	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgEd25519)
	require.NoError(t, err)
	signer, err := pkicrypto.NewSoftwareSigner(kp)
	require.NoError(t, err)

	var caID string
	for id := range cas {
		caID = id
	}
	cfg := &config.Config{
		Engine: config.EngineConfig{Instance: "sched-test", CheckInterval: config.Duration(50 * time.Millisecond)},
		CAs:    cas,
	}
	st := store.NewMemoryStore()
	eng := &engine.Engine{
		Config:      cfg,
		Store:       st,
		Source:      revocation.NewMemorySource(),
		Authority:   &signing.StaticAuthority{CAID: caID, Signer: signer},
		Distributor: &distribution.Engine{Store: st, Timeout: time.Second},
	}
	return New(eng, cfg), eng
}

func TestTickGeneratesForAutoCAs(t *testing.T) {
	s, eng := newTestScheduler(t, map[string]*config.CAConfig{
		"auto-ca": {Enabled: true, AutoGenerate: true, ValidityHours: 168, OverlapHours: 2, MaxRetries: 3},
	})
	ctx := context.Background()

	s.Tick(ctx)

	active, err := eng.Store.ActiveCRL(ctx, "auto-ca")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, int64(1), active.Number)
	assert.Equal(t, crl.TriggerScheduled, active.Trigger)
	assert.Equal(t, "sched-test", active.GeneratedBy)

	// A fresh CRL is not due, so a second tick must not consume a number.
	s.Tick(ctx)
	n, err := eng.Store.LastCRLNumber(ctx, "auto-ca")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTickSkipsManualAndDisabledCAs(t *testing.T) {
	s, eng := newTestScheduler(t, map[string]*config.CAConfig{
		"manual-ca": {Enabled: true, AutoGenerate: false, ValidityHours: 168, OverlapHours: 2},
	})
	ctx := context.Background()

	s.Tick(ctx)
	active, err := eng.Store.ActiveCRL(ctx, "manual-ca")
	require.NoError(t, err)
	assert.Nil(t, active, "non-auto CA must not be generated by the scheduler")

	eng.Config.CAs["manual-ca"].AutoGenerate = true
	eng.Config.CAs["manual-ca"].Enabled = false
	s.Tick(ctx)
	active, err = eng.Store.ActiveCRL(ctx, "manual-ca")
	require.NoError(t, err)
	assert.Nil(t, active, "disabled CA must not be generated by the scheduler")
}

func TestStartStop(t *testing.T) {
	s, eng := newTestScheduler(t, map[string]*config.CAConfig{
		"auto-ca": {Enabled: true, AutoGenerate: true, ValidityHours: 168, OverlapHours: 2},
	})

	s.Start()
	// The first tick runs immediately on start.
	deadline := time.Now().Add(2 * time.Second)
	for {
		active, err := eng.Store.ActiveCRL(context.Background(), "auto-ca")
		require.NoError(t, err)
		if active != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never generated the initial CRL")
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()

	// Stop is idempotent.
	s.Stop()
}
