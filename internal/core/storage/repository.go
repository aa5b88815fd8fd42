package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
)

// ErrNotFound is returned by point lookups when no record matches.
// Callers flipping settlement flags treat it as success: the entry may
// already have rotated out under retention.
var ErrNotFound = errors.New("record not found")

// DefaultQueryLimit caps unbounded reads.
const DefaultQueryLimit = 1000

// StoredEvent is an Event plus log-local bookkeeping. Owned exclusively
// by the event log store; mutated only through the explicit
// status-transition methods below.
type StoredEvent struct {
	v1.Event

	StoredAt   time.Time `json:"stored_at"`
	Processed  bool      `json:"processed"`
	Synced     bool      `json:"synced"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
}

// QueryOptions is the predicate set for EventStore.Query.
// Zero values mean "no constraint"; Processed/Synced use pointers so
// that "unset" and "false" stay distinguishable.
type QueryOptions struct {
	Pattern   string    `json:"pattern,omitempty"`
	Source    string    `json:"source,omitempty"`
	From      time.Time `json:"from_timestamp,omitzero"`
	To        time.Time `json:"to_timestamp,omitzero"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
	Processed *bool     `json:"processed,omitempty"`
	Synced    *bool     `json:"synced,omitempty"`
	Priority  string    `json:"priority,omitempty"`
}

// Stats is the diagnostic aggregate over the whole log. Full scan; not
// a hot path.
type Stats struct {
	TotalEvents       int64            `json:"total_events"`
	UnprocessedEvents int64            `json:"unprocessed_events"`
	UnsyncedEvents    int64            `json:"unsynced_events"`
	StorageSize       int64            `json:"storage_size"`
	OldestEvent       *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time       `json:"newest_event,omitempty"`
	EventsByPattern   map[string]int64 `json:"events_by_pattern"`
}

// EventStore is the append-only, indexed event log.
type EventStore interface {
	// Append writes a new StoredEvent (processed=false, synced=false,
	// retry_count=0) keyed by event id. A duplicate id is a silent
	// no-op, not an error: upstream retry logic may re-submit the same
	// id after a partial failure. Retention enforcement runs in the
	// same unit of work after a successful insert.
	Append(ctx context.Context, event *v1.Event) error

	// Get returns the stored record for one event id, or ErrNotFound.
	Get(ctx context.Context, id string) (*StoredEvent, error)

	// GetEvents selects by optional pattern and timestamp range,
	// ascending by timestamp, bookkeeping stripped. Zero times mean
	// unbounded; limit <= 0 means DefaultQueryLimit.
	GetEvents(ctx context.Context, pattern string, from, to time.Time, limit int) ([]*v1.Event, error)

	// Query is the general predicate-filtered, offset/limit-paginated
	// read. Ordering is ascending by timestamp.
	Query(ctx context.Context, opts QueryOptions) ([]*v1.Event, error)

	// MarkProcessed / MarkSynced flip the named settlement flag.
	// A missing id is success, not an error.
	MarkProcessed(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string) error

	// MarkFailed records a handler failure: increments retry_count and
	// stores the message. A missing id is success.
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Cleanup deletes events with timestamp < before that are fully
	// settled (processed AND synced). Returns the number removed.
	// Unsettled events are never removed by this path, regardless of
	// age.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// Stats aggregates the whole log for diagnostics.
	Stats(ctx context.Context) (*Stats, error)
}

// SnapshotStore holds materialized per-pattern snapshots.
type SnapshotStore interface {
	// CreateSnapshot stores a new snapshot row. Prior snapshots for
	// the pattern are kept; pruning is a caller concern.
	CreateSnapshot(ctx context.Context, snap *v1.Snapshot) error

	// LatestSnapshot returns the newest snapshot by timestamp for the
	// pattern, or ErrNotFound.
	LatestSnapshot(ctx context.Context, pattern string) (*v1.Snapshot, error)
}
