// Package notify delivers CRL lifecycle events to an external HTTP
// endpoint. Delivery is best-effort: the pipeline never blocks or fails
// because a webhook is slow or down.
package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Event is the JSON payload POSTed to the endpoint.
type Event struct {
	Event     string            `json:"event"`
	CA        string            `json:"ca,omitempty"`
	CRLID     string            `json:"crl_id,omitempty"`
	Number    int64             `json:"number,omitempty"`
	Timestamp string            `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Event names emitted by the engine.
const (
	EventGenerated          = "crl.generated"
	EventGenerationFailed   = "crl.generation_failed"
	EventDistributed        = "crl.distributed"
	EventDistributionFailed = "crl.distribution_failed"
	EventExpired            = "crl.expired"
)

// Notifier accepts engine events.
type Notifier interface {
	Notify(evt Event)
	Close()
}

// Nop discards all events.
type Nop struct{}

func (Nop) Notify(Event) {}
func (Nop) Close()       {}

// Webhook dispatches events to an external HTTP endpoint. Events are
// enqueued non-blockingly into a bounded channel and sent by a background
// goroutine. If the channel is full, events are dropped.
type Webhook struct {
	url        string
	authHeader string // "Header: Value" format
	client     *http.Client
	events     chan Event
	wg         sync.WaitGroup
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a dispatcher and starts its background loop.
func NewWebhook(url, authHeader string, timeout time.Duration, queueSize int) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	w := &Webhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: timeout},
		events:     make(chan Event, queueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Notify adds an event to the dispatch queue. Never blocks; when the
// queue is full the event is dropped with a warning.
func (w *Webhook) Notify(evt Event) {
	if evt.Timestamp == "" {
		evt.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	select {
	case w.events <- evt:
	default:
		slog.Warn("webhook: queue full, dropping event", "event", evt.Event, "ca", evt.CA)
	}
}

// Close shuts down the dispatcher, draining any remaining events.
func (w *Webhook) Close() {
	close(w.events)
	w.wg.Wait()
}

func (w *Webhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs the event with one retry on 5xx or transport error.
func (w *Webhook) send(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("webhook: marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(1 * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			slog.Warn("webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "crlengine-webhook/1.0")
		if w.authHeader != "" {
			parts := strings.SplitN(w.authHeader, ":", 2)
			if len(parts) == 2 {
				req.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
			}
		}

		resp, err := w.client.Do(req)
		if err != nil {
			slog.Warn("webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if resp.StatusCode >= 500 {
			slog.Warn("webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		// 4xx: do not retry.
		slog.Warn("webhook: client error", "status", resp.StatusCode)
		return
	}
}
