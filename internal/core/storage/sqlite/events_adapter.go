package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

// EventAdapter implements storage.EventStore for SQLite.
type EventAdapter struct {
	db         *sql.DB
	maxHistory int
	nowFn      func() time.Time
}

// NewEventAdapter wraps a database handle. maxHistory is the retention
// cap (max_event_history_size); <= 0 disables retention.
func NewEventAdapter(db *sql.DB, maxHistory int) *EventAdapter {
	return &EventAdapter{
		db:         db,
		maxHistory: maxHistory,
		nowFn:      time.Now,
	}
}

// Append persists a new log entry and then enforces the retention cap
// within the same unit of work. Duplicate ids are silently ignored.
func (a *EventAdapter) Append(ctx context.Context, event *v1.Event) error {
	payloadJSON, metadataJSON, err := marshalEventJSON(event)
	if err != nil {
		return err
	}

	var priority interface{}
	if event.Metadata != nil && event.Metadata.Priority != "" {
		priority = event.Metadata.Priority
	}

	result, err := a.db.ExecContext(ctx, queryAppendEvent,
		event.ID,
		event.Pattern,
		event.Source,
		payloadJSON,
		metadataJSON,
		priority,
		toMillis(event.Timestamp),
		toMillis(a.nowFn()),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read append result: %w", err)
	}
	if inserted == 0 {
		// Idempotent append: the first write wins.
		slog.Debug("[SQLite] Duplicate event id ignored", "event_id", event.ID)
		return nil
	}

	return a.enforceRetention(ctx)
}

// enforceRetention deletes the oldest events until the count is back
// under the cap. Intentionally more aggressive than Cleanup: this is a
// hard storage bound and ignores settlement status.
func (a *EventAdapter) enforceRetention(ctx context.Context) error {
	if a.maxHistory <= 0 {
		return nil
	}

	var total int
	if err := a.db.QueryRowContext(ctx, queryCountEvents).Scan(&total); err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}

	excess := total - a.maxHistory
	if excess <= 0 {
		return nil
	}

	if _, err := a.db.ExecContext(ctx, queryDeleteOldest, excess); err != nil {
		return fmt.Errorf("failed to enforce retention: %w", err)
	}

	slog.Info("[SQLite] Retention enforced", "removed", excess, "max_history", a.maxHistory)
	return nil
}

func (a *EventAdapter) Get(ctx context.Context, id string) (*storage.StoredEvent, error) {
	stored, err := scanStoredEvent(a.db.QueryRowContext(ctx, queryGetEvent, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return stored, nil
}

func (a *EventAdapter) GetEvents(ctx context.Context, pattern string, from, to time.Time, limit int) ([]*v1.Event, error) {
	return a.Query(ctx, storage.QueryOptions{
		Pattern: pattern,
		From:    from,
		To:      to,
		Limit:   limit,
	})
}

// Query builds the predicate set as WHERE clauses and lets SQLite's
// planner pick the access path over the pattern, source, settlement,
// and timestamp indexes. Ordering is ascending by timestamp.
func (a *EventAdapter) Query(ctx context.Context, opts storage.QueryOptions) ([]*v1.Event, error) {
	var (
		clauses []string
		args    []interface{}
	)

	if opts.Pattern != "" {
		clauses = append(clauses, "pattern = ?")
		args = append(args, opts.Pattern)
	}
	if opts.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, opts.Source)
	}
	if !opts.From.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, toMillis(opts.From))
	}
	if !opts.To.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, toMillis(opts.To))
	}
	if opts.Processed != nil {
		clauses = append(clauses, "processed = ?")
		args = append(args, *opts.Processed)
	}
	if opts.Synced != nil {
		clauses = append(clauses, "synced = ?")
		args = append(args, *opts.Synced)
	}
	if opts.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, opts.Priority)
	}

	query := "SELECT " + selectEventColumns + " FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?"

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	args = append(args, limit, opts.Offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return collectEvents(rows)
}

func (a *EventAdapter) MarkProcessed(ctx context.Context, id string) error {
	return a.mark(ctx, queryMarkProcessed, id)
}

func (a *EventAdapter) MarkSynced(ctx context.Context, id string) error {
	return a.mark(ctx, queryMarkSynced, id)
}

// mark flips a settlement flag. Zero rows affected is success: the
// entry may already have rotated out under retention.
func (a *EventAdapter) mark(ctx context.Context, query string, id string) error {
	if _, err := a.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark event %q: %w", id, err)
	}
	return nil
}

func (a *EventAdapter) MarkFailed(ctx context.Context, id string, lastError string) error {
	if _, err := a.db.ExecContext(ctx, queryMarkFailed, lastError, id); err != nil {
		return fmt.Errorf("failed to mark event %q failed: %w", id, err)
	}
	return nil
}

func (a *EventAdapter) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, queryCleanup, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up events: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup result: %w", err)
	}

	if removed > 0 {
		slog.Info("[SQLite] Cleaned up settled events", "removed", removed)
	}
	return removed, nil
}

func (a *EventAdapter) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		EventsByPattern: make(map[string]int64),
	}

	var oldest, newest sql.NullInt64
	err := a.db.QueryRowContext(ctx, queryStatsAggregate).Scan(
		&stats.TotalEvents,
		&stats.UnprocessedEvents,
		&stats.UnsyncedEvents,
		&stats.StorageSize,
		&oldest,
		&newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	if oldest.Valid {
		t := fromMillis(oldest.Int64)
		stats.OldestEvent = &t
	}
	if newest.Valid {
		t := fromMillis(newest.Int64)
		stats.NewestEvent = &t
	}

	rows, err := a.db.QueryContext(ctx, queryStatsByPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pattern string
			count   int64
		)
		if err := rows.Scan(&pattern, &count); err != nil {
			return nil, fmt.Errorf("failed to scan pattern count: %w", err)
		}
		stats.EventsByPattern[pattern] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern counts: %w", err)
	}

	return stats, nil
}

var _ storage.EventStore = (*EventAdapter)(nil)
