// Package scheduler drives periodic CRL maintenance: regeneration of
// CRLs that are due, sweeping of expired artifacts, and retry of failed
// distribution points.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/remiblancher/crl-engine/internal/config"
	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/engine"
)

// Scheduler runs the engine maintenance loop. One CA failing never
// prevents the others from being processed in the same tick.
type Scheduler struct {
	Engine   *engine.Engine
	Config   *config.Config
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New returns a scheduler ticking at the configured check interval.
func New(eng *engine.Engine, cfg *config.Config) *Scheduler {
	interval := cfg.Engine.CheckInterval.Std()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		Engine:   eng,
		Config:   cfg,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the maintenance loop in a goroutine. The first tick
// runs immediately so a freshly started engine does not wait a full
// interval before generating overdue CRLs.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.doneCh)
		slog.Info("scheduler started", "interval", s.Interval.String())
		s.Tick(context.Background())
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				slog.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(context.Background())
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Tick runs one maintenance pass over all configured CAs.
func (s *Scheduler) Tick(ctx context.Context) {
	if _, err := s.Engine.Sweep(ctx); err != nil {
		slog.Error("expiry sweep failed", "error", err)
	}
	for _, caID := range s.Config.CAIDs() {
		s.tickCA(ctx, caID)
	}
}

func (s *Scheduler) tickCA(ctx context.Context, caID string) {
	caCfg, err := s.Config.CA(caID)
	if err != nil || !caCfg.Enabled {
		return
	}
	if caCfg.AutoGenerate {
		res, err := s.Engine.GenerateCRL(ctx, crl.GenerationRequest{
			CAID:        caID,
			Trigger:     crl.TriggerScheduled,
			RequestedBy: "scheduler",
		})
		if err != nil {
			slog.Error("scheduled generation failed", "ca", caID, "error", err)
		} else if res.Generated {
			slog.Info("scheduled generation complete", "ca", caID, "crl_id", res.CRL.ID, "number", res.CRL.Number)
		}
	}
	if _, err := s.Engine.RetryFailed(ctx, caID); err != nil {
		slog.Error("distribution retry failed", "ca", caID, "error", err)
	}
}
