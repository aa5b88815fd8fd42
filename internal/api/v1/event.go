package v1

import (
	"fmt"
	"time"
)

// Event is the atomic unit of the bus.
// It separates the "Envelope" (System Attributes) from the "Letter" (Payload).
type Event struct {
	// --- System Attributes (The Envelope) ---

	// ID is the unique immutable identifier provided by the emitter.
	// It MUST be unique within the log to enforce idempotent appends.
	ID string `json:"id"`

	// Pattern is the hierarchical dotted event category
	// (e.g., "sales.order.created"). It is the key for subscription
	// matching downstream and for snapshot/replay grouping here.
	Pattern string `json:"pattern"`

	// Timestamp is when the event happened (emitter clock).
	// It is the authoritative ordering key of the log.
	Timestamp time.Time `json:"timestamp"`

	// Source identifies the emitting module (e.g., "pos-terminal").
	Source string `json:"source,omitempty"`

	// Metadata carries side-channel context used by deduplication and
	// dispatch. Optional.
	Metadata *Metadata `json:"metadata,omitempty"`

	// --- User Payload (The Letter) ---

	// Payload is the domain-specific payload. Dynamic JSON; the core
	// never interprets it beyond entity-id extraction and hashing.
	Payload map[string]interface{} `json:"payload"`
}

// Metadata is the recognized side-channel context on an event.
type Metadata struct {
	// Priority is an advisory dispatch hint ("low" | "normal" | "high").
	Priority string `json:"priority,omitempty"`

	// CorrelationID links events belonging to one business flow.
	CorrelationID string `json:"correlation_id,omitempty"`

	// ClientOperationID is a client-supplied id for one user action.
	// Retries of the same action reuse it, which is what makes the
	// operation-id dedup strategy work.
	ClientOperationID string `json:"client_operation_id,omitempty"`

	// UserID identifies the acting user, if known.
	UserID string `json:"user_id,omitempty"`
}

// Validate ensures the event has all required system attributes.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}

	if e.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}

	return nil
}

// Snapshot is a materialized point-in-time summary for one pattern.
// The newest snapshot by timestamp is authoritative for its pattern.
// Snapshots are created on demand and never mutated.
type Snapshot struct {
	ID        string                 `json:"id"`
	Pattern   string                 `json:"pattern"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
