// Package audit provides tamper-evident audit logging for CRL lifecycle
// operations.
//
// Audit logs are separate from technical logs and designed for:
//   - Compliance (eIDAS, ETSI EN 319 401)
//   - SIEM integration
//   - Tamper evidence via cryptographic hash chaining
//
// Key principles:
//   - Never log secrets (private keys, PINs)
//   - All timestamps in UTC
//   - Hash chain for integrity verification
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// CRL lifecycle events
	EventCRLGenerated EventType = "CRL_GENERATED"
	EventCRLExpired   EventType = "CRL_EXPIRED"
	EventCRLDeleted   EventType = "CRL_DELETED"
	EventCRLValidated EventType = "CRL_VALIDATED"
	EventCRLExported  EventType = "CRL_EXPORTED"

	// Distribution events
	EventCRLDistributed EventType = "CRL_DISTRIBUTED"
	EventCRLRetried     EventType = "CRL_RETRIED"

	// Engine lifecycle events
	EventEngineStarted EventType = "ENGINE_STARTED"
	EventEngineStopped EventType = "ENGINE_STOPPED"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	// ResultPartial marks operations that succeeded for some targets and
	// failed for others, like a multi-point distribution.
	ResultPartial Result = "partial"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "scheduler", "api"
	ID   string `json:"id"`             // username or engine instance
	Host string `json:"host,omitempty"` // hostname where action occurred
}

// Object represents what was acted upon.
type Object struct {
	Type   string `json:"type"`             // "crl", "point"
	CA     string `json:"ca,omitempty"`     // CA identifier
	CRLID  string `json:"crl_id,omitempty"` // CRL identifier
	Number int64  `json:"number,omitempty"` // CRL number
	URL    string `json:"url,omitempty"`    // distribution point URL
}

// Context provides additional details about the operation.
type Context struct {
	Trigger   string `json:"trigger,omitempty"`   // scheduled, manual, revocation
	Algorithm string `json:"algorithm,omitempty"` // signature algorithm
	Reason    string `json:"reason,omitempty"`    // failure reason
	Entries   int    `json:"entries,omitempty"`   // revoked entry count
	Points    int    `json:"points,omitempty"`    // distribution targets
	Failed    int    `json:"failed,omitempty"`    // failed targets
	Deleted   int    `json:"deleted,omitempty"`   // cleanup count
	Signed    bool   `json:"signed,omitempty"`    // artifact carries a signature
	Valid     bool   `json:"valid,omitempty"`     // validation verdict
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // SHA-256 hash of previous event
	Hash      string    `json:"hash"`      // SHA-256 hash of this event
}

// NewEvent creates an audit event with the current timestamp and a
// system actor derived from the environment.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = "unknown"
	}

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "system",
			ID:   username,
			Host: hostname,
		},
		Result: result,
	}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing.
// Excludes the Hash field to allow hash calculation.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}

	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
