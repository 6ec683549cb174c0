// Package distribution publishes signed CRLs to their distribution points
// and tracks per-point delivery state for retries.
package distribution

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/store"
)

// contentTypeCRL is the media type for DER-encoded CRLs (RFC 5280).
const contentTypeCRL = "application/pkix-crl"

// PointResult is the outcome of publishing to one point.
type PointResult struct {
	PointID  string        `json:"point_id"`
	URL      string        `json:"url"`
	Success  bool          `json:"success"`
	Status   int           `json:"status,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	// Receipt is a COSE_Sign1 publication receipt, present on success
	// when receipt signing is configured and the CA's algorithm is
	// COSE-capable.
	Receipt []byte `json:"receipt,omitempty"`
}

// Result aggregates one distribution run. A run with partial failures is
// not an error: the CRL stays active and failed points carry retry state.
type Result struct {
	CRLID string `json:"crl_id"`
	// Success means no point failed. A run with nothing to publish is
	// a success.
	Success   bool          `json:"success"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []PointResult `json:"results"`
}

// Engine publishes CRLs over HTTP with bounded concurrency.
type Engine struct {
	Store  store.Store
	Client *http.Client
	// Receipts signs publication receipts when non-nil.
	Receipts *ReceiptSigner
	// MaxConcurrent bounds parallel publishes; <= 0 means 4.
	MaxConcurrent int
	// Timeout bounds each individual publish; <= 0 means 10s.
	Timeout time.Duration
}

func (e *Engine) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

// timeout picks the publish deadline for one point: the point's own
// timeout when set, otherwise the engine-wide one.
func (e *Engine) timeout(p *crl.DistributionPoint) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 10 * time.Second
}

// Distribute publishes the CRL to every enabled point, highest priority
// first. Unsigned artifacts are refused outright. Point failures are
// recorded, never fatal: the store commit that made this CRL active is
// already durable and independent of publication.
func (e *Engine) Distribute(ctx context.Context, c *crl.CRL, points []*crl.DistributionPoint, maxRetries int) (*Result, error) {
	if !c.Signed {
		return nil, fmt.Errorf("%w: refusing to distribute CRL %s", crl.ErrUnsigned, c.ID)
	}

	enabled := make([]*crl.DistributionPoint, 0, len(points))
	for _, p := range points {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })

	res := &Result{CRLID: c.ID, Success: true, Attempted: len(enabled), Results: make([]PointResult, len(enabled))}
	if len(enabled) == 0 {
		return res, nil
	}

	workers := e.MaxConcurrent
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, p := range enabled {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p *crl.DistributionPoint) {
			defer wg.Done()
			defer func() { <-sem }()
			res.Results[i] = e.publish(ctx, c, p, maxRetries)
		}(i, p)
	}
	wg.Wait()

	for _, r := range res.Results {
		if r.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	res.Success = res.Failed == 0
	return res, nil
}

// RetryFailed re-publishes pending CRLs for the CA's points that have
// retry state. Points without pending work are skipped.
func (e *Engine) RetryFailed(ctx context.Context, caID string, maxRetries int) (*Result, error) {
	points, err := e.Store.ListPoints(ctx, caID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, p := range points {
		if !p.Enabled || p.PendingCRLID == "" {
			continue
		}
		c, err := e.Store.GetCRL(ctx, p.PendingCRLID)
		if err != nil {
			slog.Warn("retry: pending CRL vanished", "point", p.ID, "crl", p.PendingCRLID, "error", err)
			continue
		}
		if !c.Signed {
			continue
		}
		res.CRLID = c.ID
		res.Attempted++
		r := e.publish(ctx, c, p, maxRetries)
		res.Results = append(res.Results, r)
		if r.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	res.Success = res.Failed == 0
	return res, nil
}

// publish performs a single HTTP PUT of the CRL to the point and records
// the outcome.
func (e *Engine) publish(ctx context.Context, c *crl.CRL, p *crl.DistributionPoint, maxRetries int) PointResult {
	start := time.Now()
	result := PointResult{PointID: p.ID, URL: p.URL}

	pctx, cancel := context.WithTimeout(ctx, e.timeout(p))
	defer cancel()

	status, err := e.put(pctx, p.URL, c.Raw)
	result.Status = status
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
		if e.Receipts != nil {
			receipt, rerr := e.Receipts.Sign(c, p.URL, time.Now().UTC())
			if rerr != nil {
				// Receipt failure does not undo a successful publish.
				slog.Warn("receipt signing failed", "point", p.ID, "crl", c.ID, "error", rerr)
			} else {
				result.Receipt = receipt
			}
		}
	}

	if err := e.Store.RecordPointOutcome(ctx, p.ID, c.ID, result.Success, time.Now().UTC(), maxRetries); err != nil {
		slog.Error("failed to record point outcome", "point", p.ID, "error", err)
	}

	if result.Success {
		slog.Info("CRL published", "point", p.ID, "url", p.URL, "crl", c.ID, "number", c.Number)
	} else {
		slog.Warn("CRL publish failed", "point", p.ID, "url", p.URL, "crl", c.ID, "error", result.Error)
	}
	return result
}

func (e *Engine) put(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", contentTypeCRL)

	resp, err := e.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
