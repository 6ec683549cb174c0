// Package engine orchestrates the CRL lifecycle: generation, signing,
// persistence, distribution, validation, export and retirement.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/remiblancher/crl-engine/internal/audit"
	"github.com/remiblancher/crl-engine/internal/config"
	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/distribution"
	"github.com/remiblancher/crl-engine/internal/notify"
	"github.com/remiblancher/crl-engine/internal/signing"
	"github.com/remiblancher/crl-engine/internal/stats"
	"github.com/remiblancher/crl-engine/internal/store"
)

// Engine wires the lifecycle components together. All public methods are
// safe for concurrent use; generation is serialized per CA so concurrent
// requests cannot race on CRL numbers.
type Engine struct {
	Config      *config.Config
	Store       store.Store
	Source      crl.RevocationSource
	Authority   signing.Authority
	Distributor *distribution.Engine
	Audit       audit.Writer
	Notifier    notify.Notifier
	Metrics     *stats.Metrics
	Clock       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	tally stats.GenerationTally
}

// GenerateResult reports one generation request's outcome. Generated is
// false when the request was valid but no CRL was needed (not due).
type GenerateResult struct {
	Generated    bool                 `json:"generated"`
	Message      string               `json:"message,omitempty"`
	CRL          *crl.CRL             `json:"crl,omitempty"`
	Distribution *distribution.Result `json:"distribution,omitempty"`
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) caLock(caID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	l, ok := e.locks[caID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[caID] = l
	}
	return l
}

func (e *Engine) writer() audit.Writer {
	if e.Audit != nil {
		return e.Audit
	}
	return audit.NopWriter{}
}

func (e *Engine) notify(evt notify.Event) {
	if e.Notifier != nil {
		e.Notifier.Notify(evt)
	}
}

// GenerateCRL runs the generation pipeline for one request: due check,
// build, sign, atomic persist, then distribution. A failure before the
// persist step consumes no CRL number and leaves the active CRL in place.
func (e *Engine) GenerateCRL(ctx context.Context, req crl.GenerationRequest) (*GenerateResult, error) {
	caCfg, err := e.Config.CA(req.CAID)
	if err != nil {
		return nil, err
	}
	if !caCfg.Enabled {
		return nil, fmt.Errorf("%w: %s", crl.ErrCADisabled, req.CAID)
	}
	if req.Trigger == "" {
		req.Trigger = crl.TriggerManual
	}

	lock := e.caLock(req.CAID)
	lock.Lock()
	defer lock.Unlock()

	start := e.now()

	var pointIDs, pointURLs []string
	for _, p := range caCfg.Points {
		if p.Enabled {
			pointIDs = append(pointIDs, p.ID)
			pointURLs = append(pointURLs, p.URL)
		}
	}

	builder := &crl.Builder{Source: e.Source, Store: e.Store, Clock: e.Clock}
	unsigned, err := builder.Build(ctx, req, crl.BuildParams{
		ValidityHours:  caCfg.ValidityHours,
		OverlapHours:   caCfg.OverlapHours,
		IncludeExpired: caCfg.IncludeExpired,
		PointIDs:       pointIDs,
		PointURLs:      pointURLs,
	})
	if err != nil {
		if errors.Is(err, crl.ErrNotDue) {
			return &GenerateResult{Generated: false, Message: "active CRL still fresh; generation not due"}, nil
		}
		e.tally.Record(req.CAID, false)
		e.Metrics.ObserveGeneration(req.CAID, req.Trigger, false, 0)
		return nil, err
	}

	signer := &crl.Signer{Authority: e.Authority, GeneratedBy: e.Config.Engine.Instance, Clock: e.Clock}
	signed, err := signer.Sign(ctx, unsigned, caCfg.Security.Options())
	if err != nil {
		e.tally.Record(req.CAID, false)
		e.Metrics.ObserveGeneration(req.CAID, req.Trigger, false, 0)
		e.auditGeneration(req, nil, err)
		e.notify(notify.Event{Event: notify.EventGenerationFailed, CA: req.CAID,
			Attrs: map[string]string{"error": err.Error()}})
		return nil, err
	}

	if err := e.Store.SaveCRL(ctx, signed); err != nil {
		e.tally.Record(req.CAID, false)
		e.Metrics.ObserveGeneration(req.CAID, req.Trigger, false, 0)
		e.auditGeneration(req, signed, err)
		return nil, fmt.Errorf("persist CRL for CA %s: %w", req.CAID, err)
	}

	elapsed := e.now().Sub(start).Seconds()
	e.tally.Record(req.CAID, true)
	e.Metrics.ObserveGeneration(req.CAID, req.Trigger, true, elapsed)
	e.Metrics.SetActive(signed)
	e.auditGeneration(req, signed, nil)
	e.notify(notify.Event{Event: notify.EventGenerated, CA: req.CAID, CRLID: signed.ID, Number: signed.Number,
		Attrs: map[string]string{"trigger": string(req.Trigger), "entries": fmt.Sprint(len(signed.Entries))}})
	slog.Info("CRL generated", "ca", req.CAID, "crl", signed.ID, "number", signed.Number,
		"entries", len(signed.Entries), "trigger", req.Trigger, "signed", signed.Signed)

	result := &GenerateResult{Generated: true, CRL: signed}

	if signed.Signed && len(caCfg.Points) > 0 {
		dist, err := e.distribute(ctx, signed, caCfg)
		if err != nil {
			// Distribution problems never undo a committed CRL.
			slog.Error("distribution failed", "ca", req.CAID, "crl", signed.ID, "error", err)
		} else {
			result.Distribution = dist
		}
	}
	return result, nil
}

func (e *Engine) auditGeneration(req crl.GenerationRequest, c *crl.CRL, genErr error) {
	result := audit.ResultSuccess
	ctx := audit.Context{Trigger: string(req.Trigger)}
	obj := audit.Object{Type: "crl", CA: req.CAID}
	if c != nil {
		obj.CRLID = c.ID
		obj.Number = c.Number
		ctx.Entries = len(c.Entries)
		ctx.Signed = c.Signed
		ctx.Algorithm = c.SignatureAlgorithm
	}
	if genErr != nil {
		result = audit.ResultFailure
		ctx.Reason = genErr.Error()
	}
	if err := e.writer().Write(audit.NewEvent(audit.EventCRLGenerated, result).WithObject(obj).WithContext(ctx)); err != nil {
		slog.Error("audit write failed", "error", err)
	}
}

// distribute publishes to the CA's configured points, creating missing
// point records first so counters survive restarts.
func (e *Engine) distribute(ctx context.Context, c *crl.CRL, caCfg *config.CAConfig) (*distribution.Result, error) {
	points, err := e.syncPoints(ctx, c.CAID, caCfg)
	if err != nil {
		return nil, err
	}

	res, err := e.Distributor.Distribute(ctx, c, points, caCfg.MaxRetries)
	if err != nil {
		return nil, err
	}

	e.Metrics.ObserveDistribution(c.CAID, res.Succeeded, res.Failed)
	result := audit.ResultSuccess
	evt := notify.EventDistributed
	if res.Failed > 0 {
		result = audit.ResultPartial
		evt = notify.EventDistributionFailed
		if res.Succeeded == 0 {
			result = audit.ResultFailure
		}
	}
	if err := e.writer().Write(audit.NewEvent(audit.EventCRLDistributed, result).
		WithObject(audit.Object{Type: "crl", CA: c.CAID, CRLID: c.ID, Number: c.Number}).
		WithContext(audit.Context{Points: res.Attempted, Failed: res.Failed})); err != nil {
		slog.Error("audit write failed", "error", err)
	}
	e.notify(notify.Event{Event: evt, CA: c.CAID, CRLID: c.ID, Number: c.Number,
		Attrs: map[string]string{"succeeded": fmt.Sprint(res.Succeeded), "failed": fmt.Sprint(res.Failed)}})
	return res, nil
}

// syncPoints reconciles configured points into the store and returns the
// stored records (which carry the delivery counters).
func (e *Engine) syncPoints(ctx context.Context, caID string, caCfg *config.CAConfig) ([]*crl.DistributionPoint, error) {
	for _, pc := range caCfg.Points {
		existing, err := e.Store.GetPoint(ctx, pc.ID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			existing = &crl.DistributionPoint{ID: pc.ID, CAID: caID}
		}
		existing.URL = pc.URL
		existing.Enabled = pc.Enabled
		existing.Priority = pc.Priority
		existing.Timeout = pc.Timeout.Std()
		if err := e.Store.SavePoint(ctx, existing); err != nil {
			return nil, err
		}
	}
	return e.Store.ListPoints(ctx, caID)
}

// DistributeCRL re-publishes a stored CRL to the CA's points on demand.
func (e *Engine) DistributeCRL(ctx context.Context, crlID string) (*distribution.Result, error) {
	c, err := e.Store.GetCRL(ctx, crlID)
	if err != nil {
		return nil, err
	}
	caCfg, err := e.Config.CA(c.CAID)
	if err != nil {
		return nil, err
	}
	return e.distribute(ctx, c, caCfg)
}

// RetryFailed retries pending publications for one CA.
func (e *Engine) RetryFailed(ctx context.Context, caID string) (*distribution.Result, error) {
	caCfg, err := e.Config.CA(caID)
	if err != nil {
		return nil, err
	}
	res, err := e.Distributor.RetryFailed(ctx, caID, caCfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	if res.Attempted > 0 {
		e.Metrics.ObserveDistribution(caID, res.Succeeded, res.Failed)
		result := audit.ResultSuccess
		if res.Failed > 0 {
			result = audit.ResultPartial
		}
		if err := e.writer().Write(audit.NewEvent(audit.EventCRLRetried, result).
			WithObject(audit.Object{Type: "crl", CA: caID, CRLID: res.CRLID}).
			WithContext(audit.Context{Points: res.Attempted, Failed: res.Failed})); err != nil {
			slog.Error("audit write failed", "error", err)
		}
	}
	return res, nil
}

// ValidateCRL checks a stored CRL.
func (e *Engine) ValidateCRL(ctx context.Context, crlID string) (*crl.ValidationResult, error) {
	keys, _ := e.Authority.(signing.KeyProvider)
	v := &crl.Validator{Store: e.Store, Keys: keys, Clock: e.Clock}
	res, err := v.Validate(ctx, crlID)
	if err != nil {
		return nil, err
	}
	if aerr := e.writer().Write(audit.NewEvent(audit.EventCRLValidated, audit.ResultSuccess).
		WithObject(audit.Object{Type: "crl", CRLID: crlID}).
		WithContext(audit.Context{Valid: res.Valid})); aerr != nil {
		slog.Error("audit write failed", "error", aerr)
	}
	return res, nil
}

// ExportCRL encodes a stored CRL as PEM or DER.
func (e *Engine) ExportCRL(ctx context.Context, crlID string, format crl.ExportFormat) (*crl.Export, error) {
	c, err := e.Store.GetCRL(ctx, crlID)
	if err != nil {
		return nil, err
	}
	exp, err := crl.ExportCRL(c, format)
	if err != nil {
		return nil, err
	}
	if aerr := e.writer().Write(audit.NewEvent(audit.EventCRLExported, audit.ResultSuccess).
		WithObject(audit.Object{Type: "crl", CA: c.CAID, CRLID: c.ID, Number: c.Number})); aerr != nil {
		slog.Error("audit write failed", "error", aerr)
	}
	return exp, nil
}

// Sweep transitions CRLs past nextUpdate to expired.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	count, err := e.Store.SweepExpired(ctx, e.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.Metrics.ObserveSweep(count)
		if aerr := e.writer().Write(audit.NewEvent(audit.EventCRLExpired, audit.ResultSuccess).
			WithObject(audit.Object{Type: "crl"}).
			WithContext(audit.Context{Deleted: count})); aerr != nil {
			slog.Error("audit write failed", "error", aerr)
		}
		slog.Info("expired CRLs swept", "count", count)
	}
	return count, nil
}

// Cleanup deletes a CA's retired CRLs older than the retention window.
// The active CRL always survives.
func (e *Engine) Cleanup(ctx context.Context, caID string, retention time.Duration) (int, error) {
	if _, err := e.Config.CA(caID); err != nil {
		return 0, err
	}
	cutoff := e.now().Add(-retention)
	count, err := e.Store.DeleteExpiredBefore(ctx, caID, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.Metrics.ObserveCleanup(count)
		if aerr := e.writer().Write(audit.NewEvent(audit.EventCRLDeleted, audit.ResultSuccess).
			WithObject(audit.Object{Type: "crl", CA: caID}).
			WithContext(audit.Context{Deleted: count})); aerr != nil {
			slog.Error("audit write failed", "error", aerr)
		}
	}
	return count, nil
}

// Stats computes the CA's statistics snapshot. An empty caID returns
// the aggregate over every configured CA.
func (e *Engine) Stats(ctx context.Context, caID string) (*stats.CAStats, error) {
	c := &stats.Collector{Store: e.Store, Tally: &e.tally}

	if caID == "" {
		var snapshots []*stats.CAStats
		for _, id := range e.Config.CAIDs() {
			caCfg, err := e.Config.CA(id)
			if err != nil {
				return nil, err
			}
			snap, err := c.CAStats(ctx, id, caCfg.OverlapHours)
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, snap)
		}
		return stats.Aggregate(snapshots), nil
	}

	caCfg, err := e.Config.CA(caID)
	if err != nil {
		return nil, err
	}
	return c.CAStats(ctx, caID, caCfg.OverlapHours)
}
