// Package memory provides in-memory implementations of the storage
// interfaces. Useful for testing and for ephemeral deployments that
// opt out of durability (database.type: memory).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

// EventLog is an in-memory EventStore + SnapshotStore.
type EventLog struct {
	mu         sync.RWMutex
	events     map[string]*storage.StoredEvent
	snapshots  []*v1.Snapshot
	maxHistory int
	nowFn      func() time.Time
}

// NewEventLog creates an in-memory log. maxHistory <= 0 disables
// retention.
func NewEventLog(maxHistory int) *EventLog {
	return &EventLog{
		events:     make(map[string]*storage.StoredEvent),
		maxHistory: maxHistory,
		nowFn:      time.Now,
	}
}

// Ping reports the store as healthy. It exists so the in-memory log
// can back the server's health check like the durable store does.
func (l *EventLog) Ping(ctx context.Context) error {
	return nil
}

func (l *EventLog) Append(ctx context.Context, event *v1.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.events[event.ID]; exists {
		// Idempotent append: the first write wins.
		return nil
	}

	stored := &storage.StoredEvent{
		Event:    *event,
		StoredAt: l.nowFn(),
	}
	l.events[event.ID] = stored

	l.enforceRetention()
	return nil
}

// enforceRetention deletes the oldest-by-timestamp events until the
// count is back under the cap, regardless of settlement status.
// Caller holds the write lock.
func (l *EventLog) enforceRetention() {
	if l.maxHistory <= 0 || len(l.events) <= l.maxHistory {
		return
	}

	all := make([]*storage.StoredEvent, 0, len(l.events))
	for _, ev := range l.events {
		all = append(all, ev)
	}
	sortByTimestamp(all)

	excess := len(all) - l.maxHistory
	for _, ev := range all[:excess] {
		delete(l.events, ev.ID)
	}
}

func (l *EventLog) Get(ctx context.Context, id string) (*storage.StoredEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ev, exists := l.events[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy to prevent external modification.
	copy := *ev
	return &copy, nil
}

func (l *EventLog) GetEvents(ctx context.Context, pattern string, from, to time.Time, limit int) ([]*v1.Event, error) {
	return l.Query(ctx, storage.QueryOptions{
		Pattern: pattern,
		From:    from,
		To:      to,
		Limit:   limit,
	})
}

func (l *EventLog) Query(ctx context.Context, opts storage.QueryOptions) ([]*v1.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*storage.StoredEvent
	for _, ev := range l.events {
		if !matches(ev, opts) {
			continue
		}
		matched = append(matched, ev)
	}
	sortByTimestamp(matched)

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*v1.Event{}, nil
		}
		matched = matched[opts.Offset:]
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*v1.Event, 0, len(matched))
	for _, ev := range matched {
		copy := ev.Event
		out = append(out, &copy)
	}
	return out, nil
}

func matches(ev *storage.StoredEvent, opts storage.QueryOptions) bool {
	if opts.Pattern != "" && ev.Pattern != opts.Pattern {
		return false
	}
	if opts.Source != "" && ev.Source != opts.Source {
		return false
	}
	if !opts.From.IsZero() && ev.Timestamp.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && ev.Timestamp.After(opts.To) {
		return false
	}
	if opts.Processed != nil && ev.Processed != *opts.Processed {
		return false
	}
	if opts.Synced != nil && ev.Synced != *opts.Synced {
		return false
	}
	if opts.Priority != "" {
		if ev.Metadata == nil || ev.Metadata.Priority != opts.Priority {
			return false
		}
	}
	return true
}

func sortByTimestamp(events []*storage.StoredEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].ID < events[j].ID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

func (l *EventLog) MarkProcessed(ctx context.Context, id string) error {
	return l.mutate(id, func(ev *storage.StoredEvent) { ev.Processed = true })
}

func (l *EventLog) MarkSynced(ctx context.Context, id string) error {
	return l.mutate(id, func(ev *storage.StoredEvent) { ev.Synced = true })
}

func (l *EventLog) MarkFailed(ctx context.Context, id string, lastError string) error {
	return l.mutate(id, func(ev *storage.StoredEvent) {
		ev.RetryCount++
		ev.LastError = lastError
	})
}

// mutate applies fn to the named event. Missing ids are success: the
// entry may already have rotated out under retention.
func (l *EventLog) mutate(id string, fn func(*storage.StoredEvent)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev, exists := l.events[id]; exists {
		fn(ev)
	}
	return nil
}

func (l *EventLog) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int64
	for id, ev := range l.events {
		if ev.Timestamp.Before(before) && ev.Processed && ev.Synced {
			delete(l.events, id)
			removed++
		}
	}
	return removed, nil
}

func (l *EventLog) Stats(ctx context.Context) (*storage.Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &storage.Stats{
		EventsByPattern: make(map[string]int64),
	}
	for _, ev := range l.events {
		stats.TotalEvents++
		if !ev.Processed {
			stats.UnprocessedEvents++
		}
		if !ev.Synced {
			stats.UnsyncedEvents++
		}
		stats.EventsByPattern[ev.Pattern]++

		ts := ev.Timestamp
		if stats.OldestEvent == nil || ts.Before(*stats.OldestEvent) {
			stats.OldestEvent = &ts
		}
		if stats.NewestEvent == nil || ts.After(*stats.NewestEvent) {
			stats.NewestEvent = &ts
		}
	}
	return stats, nil
}

func (l *EventLog) CreateSnapshot(ctx context.Context, snap *v1.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	copy := *snap
	l.snapshots = append(l.snapshots, &copy)
	return nil
}

func (l *EventLog) LatestSnapshot(ctx context.Context, pattern string) (*v1.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var newest *v1.Snapshot
	for _, snap := range l.snapshots {
		if snap.Pattern != pattern {
			continue
		}
		if newest == nil || snap.Timestamp.After(newest.Timestamp) {
			newest = snap
		}
	}
	if newest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *newest
	return &copy, nil
}

var (
	_ storage.EventStore    = (*EventLog)(nil)
	_ storage.SnapshotStore = (*EventLog)(nil)
)
