// Package eventlog orchestrates the publish path: fingerprint the
// event, consult the dedup engine, append to the log, record the
// fingerprint. It also fronts replay, snapshots, settlement marking,
// and maintenance for the HTTP layer.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
	"github.com/offlinekit/eventcore/internal/dedup"
)

// PublishResult reports what happened to one emitted event.
type PublishResult struct {
	// Duplicate is true when a dedup strategy suppressed the event.
	Duplicate bool `json:"duplicate"`

	// Reason names the matching strategy when Duplicate is true.
	Reason dedup.Reason `json:"reason,omitempty"`

	// Metadata is the fingerprint derived for the event.
	Metadata *dedup.Metadata `json:"-"`
}

// ReplayResult is a snapshot (possibly absent) plus the events since it.
type ReplayResult struct {
	Snapshot *v1.Snapshot `json:"snapshot,omitempty"`
	Events   []*v1.Event  `json:"events"`
}

// Service wires the dedup engine and the stores together.
type Service struct {
	engine    *dedup.Engine
	events    storage.EventStore
	snapshots storage.SnapshotStore
	locks     *fingerprintLocks
	nowFn     func() time.Time
}

func NewService(engine *dedup.Engine, events storage.EventStore, snapshots storage.SnapshotStore) *Service {
	if engine == nil {
		panic("eventlog: engine must not be nil")
	}
	if events == nil {
		panic("eventlog: event store must not be nil")
	}
	if snapshots == nil {
		panic("eventlog: snapshot store must not be nil")
	}
	return &Service{
		engine:    engine,
		events:    events,
		snapshots: snapshots,
		locks:     newFingerprintLocks(),
		nowFn:     time.Now,
	}
}

// Publish runs the full intake sequence for one event.
//
// The dedup check and the metadata write are not covered by one
// storage transaction, so two interleaved emits of the same operation
// could both pass the check. The per-content-hash lock closes that
// window within this process; the single-writer deployment model means
// there is no other process to race.
func (s *Service) Publish(ctx context.Context, event *v1.Event) (*PublishResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.nowFn().UTC()
	}

	meta, err := s.engine.GenerateMetadata(event)
	if err != nil {
		return nil, fmt.Errorf("generate metadata: %w", err)
	}

	unlock := s.locks.lock(meta.ContentHash)
	defer unlock()

	verdict := s.engine.IsDuplicate(ctx, meta)
	if verdict.IsDupe {
		slog.Info("[EventLog] Duplicate suppressed",
			"event_id", event.ID,
			"pattern", event.Pattern,
			"reason", verdict.Reason,
		)
		return &PublishResult{Duplicate: true, Reason: verdict.Reason, Metadata: meta}, nil
	}

	if err := s.events.Append(ctx, event); err != nil {
		return nil, err
	}
	if err := s.engine.StoreMetadata(ctx, meta); err != nil {
		// The event is already in the log; a lost fingerprint only
		// weakens dedup for this window, so don't fail the publish.
		slog.Warn("[EventLog] Failed to record dedup metadata", "event_id", event.ID, "error", err)
	}

	return &PublishResult{Metadata: meta}, nil
}

// RetryPublish re-runs Publish for an event whose earlier emission was
// suppressed or failed downstream, bumping the fingerprint's attempt
// counter first so the metadata records how often the operation was
// retried.
func (s *Service) RetryPublish(ctx context.Context, event *v1.Event, meta *dedup.Metadata) (*PublishResult, error) {
	if meta != nil {
		if err := s.engine.IncrementAttempts(ctx, meta); err != nil {
			slog.Warn("[EventLog] Failed to bump attempt counter", "event_id", event.ID, "error", err)
		}
	}
	return s.Publish(ctx, event)
}

// Replay finds the newest snapshot for the pattern and returns it with
// the events logged since. With no snapshot, events are read from
// the supplied lower bound (zero means the whole log).
func (s *Service) Replay(ctx context.Context, pattern string, from time.Time) (*ReplayResult, error) {
	result := &ReplayResult{}

	snap, err := s.snapshots.LatestSnapshot(ctx, pattern)
	switch {
	case err == nil:
		result.Snapshot = snap
		from = snap.Timestamp
	case errors.Is(err, storage.ErrNotFound):
		// No snapshot yet; replay from the caller's bound.
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	events, err := s.events.GetEvents(ctx, pattern, from, time.Time{}, 0)
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	result.Events = events

	return result, nil
}

// CreateSnapshot materializes a caller-supplied summary for a pattern,
// timestamped now. Prior snapshots are kept.
func (s *Service) CreateSnapshot(ctx context.Context, pattern string, data map[string]interface{}) (*v1.Snapshot, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("snapshot id: %w", err)
	}

	snap := &v1.Snapshot{
		ID:        id.String(),
		Pattern:   pattern,
		Data:      data,
		Timestamp: s.nowFn().UTC(),
	}
	if err := s.snapshots.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	slog.Info("[EventLog] Snapshot created", "pattern", pattern, "snapshot_id", snap.ID)
	return snap, nil
}

// Pass-throughs for the HTTP layer.

func (s *Service) GetEvents(ctx context.Context, pattern string, from, to time.Time, limit int) ([]*v1.Event, error) {
	return s.events.GetEvents(ctx, pattern, from, to, limit)
}

func (s *Service) Query(ctx context.Context, opts storage.QueryOptions) ([]*v1.Event, error) {
	return s.events.Query(ctx, opts)
}

func (s *Service) MarkProcessed(ctx context.Context, id string) error {
	return s.events.MarkProcessed(ctx, id)
}

func (s *Service) MarkSynced(ctx context.Context, id string) error {
	return s.events.MarkSynced(ctx, id)
}

func (s *Service) MarkFailed(ctx context.Context, id string, lastError string) error {
	return s.events.MarkFailed(ctx, id, lastError)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.events.Cleanup(ctx, before)
}

func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.events.Stats(ctx)
}
