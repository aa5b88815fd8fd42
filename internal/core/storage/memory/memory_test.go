package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

func testEvent(id string, pattern string, ts time.Time) *v1.Event {
	return &v1.Event{
		ID:        id,
		Pattern:   pattern,
		Timestamp: ts,
		Source:    "pos-1",
		Payload:   map[string]interface{}{"orderId": "o-1"},
	}
}

func TestAppend_IsIdempotent(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	first := testEvent("evt-1", "sales.order.created", ts)
	require.NoError(t, log.Append(ctx, first))

	// Second append with the same id must not clobber the original.
	replay := testEvent("evt-1", "sales.order.created", ts)
	replay.Payload = map[string]interface{}{"orderId": "o-999"}
	require.NoError(t, log.Append(ctx, replay))

	stored, err := log.Get(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, "o-1", stored.Payload["orderId"])

	stats, err := log.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalEvents)
}

func TestAppend_RetentionKeepsNewest(t *testing.T) {
	log := NewEventLog(3)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := testEvent(fmt.Sprintf("evt-%d", i), "sales.order.created", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, log.Append(ctx, ev))
	}

	stats, err := log.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalEvents)

	// The two oldest rotated out.
	_, err = log.Get(ctx, "evt-0")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = log.Get(ctx, "evt-1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = log.Get(ctx, "evt-4")
	require.NoError(t, err)
}

func TestGet_NotFound(t *testing.T) {
	log := NewEventLog(0)
	_, err := log.Get(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQuery_Filters(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	orders := testEvent("evt-1", "sales.order.created", base)
	stock := testEvent("evt-2", "inventory.stock.adjusted", base.Add(time.Second))
	stock.Source = "backoffice"
	late := testEvent("evt-3", "sales.order.created", base.Add(time.Hour))
	late.Metadata = &v1.Metadata{Priority: "high"}

	require.NoError(t, log.Append(ctx, orders))
	require.NoError(t, log.Append(ctx, stock))
	require.NoError(t, log.Append(ctx, late))

	byPattern, err := log.Query(ctx, storage.QueryOptions{Pattern: "sales.order.created"})
	require.NoError(t, err)
	require.Len(t, byPattern, 2)

	bySource, err := log.Query(ctx, storage.QueryOptions{Source: "backoffice"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	require.Equal(t, "evt-2", bySource[0].ID)

	byRange, err := log.Query(ctx, storage.QueryOptions{
		From: base,
		To:   base.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, byRange, 2)

	byPriority, err := log.Query(ctx, storage.QueryOptions{Priority: "high"})
	require.NoError(t, err)
	require.Len(t, byPriority, 1)
	require.Equal(t, "evt-3", byPriority[0].ID)
}

func TestQuery_SettlementFilters(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, testEvent("evt-1", "p", base)))
	require.NoError(t, log.Append(ctx, testEvent("evt-2", "p", base.Add(time.Second))))
	require.NoError(t, log.MarkProcessed(ctx, "evt-1"))

	unprocessed := false
	pending, err := log.Query(ctx, storage.QueryOptions{Processed: &unprocessed})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "evt-2", pending[0].ID)

	processed := true
	done, err := log.Query(ctx, storage.QueryOptions{Processed: &processed})
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, "evt-1", done[0].ID)
}

func TestQuery_OrderingAndPagination(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// Insert out of order, including a timestamp tie.
	require.NoError(t, log.Append(ctx, testEvent("evt-c", "p", base.Add(2*time.Second))))
	require.NoError(t, log.Append(ctx, testEvent("evt-b", "p", base)))
	require.NoError(t, log.Append(ctx, testEvent("evt-a", "p", base)))

	all, err := log.Query(ctx, storage.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "evt-a", all[0].ID)
	require.Equal(t, "evt-b", all[1].ID)
	require.Equal(t, "evt-c", all[2].ID)

	page, err := log.Query(ctx, storage.QueryOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "evt-b", page[0].ID)

	empty, err := log.Query(ctx, storage.QueryOptions{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestMarks_MissingIDIsSuccess(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()

	require.NoError(t, log.MarkProcessed(ctx, "missing"))
	require.NoError(t, log.MarkSynced(ctx, "missing"))
	require.NoError(t, log.MarkFailed(ctx, "missing", "boom"))
}

func TestMarkFailed_AccumulatesRetries(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, testEvent("evt-1", "p", base)))
	require.NoError(t, log.MarkFailed(ctx, "evt-1", "sync timeout"))
	require.NoError(t, log.MarkFailed(ctx, "evt-1", "still down"))

	stored, err := log.Get(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, 2, stored.RetryCount)
	require.Equal(t, "still down", stored.LastError)
}

func TestCleanup_OnlyRemovesSettledEvents(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, testEvent("settled", "p", base)))
	require.NoError(t, log.Append(ctx, testEvent("pending", "p", base)))
	require.NoError(t, log.Append(ctx, testEvent("recent", "p", base.Add(time.Hour))))

	require.NoError(t, log.MarkProcessed(ctx, "settled"))
	require.NoError(t, log.MarkSynced(ctx, "settled"))
	require.NoError(t, log.MarkProcessed(ctx, "recent"))
	require.NoError(t, log.MarkSynced(ctx, "recent"))

	removed, err := log.Cleanup(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, err = log.Get(ctx, "settled")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = log.Get(ctx, "pending")
	require.NoError(t, err)
	_, err = log.Get(ctx, "recent")
	require.NoError(t, err)
}

func TestStats(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, testEvent("evt-1", "sales.order.created", base)))
	require.NoError(t, log.Append(ctx, testEvent("evt-2", "sales.order.created", base.Add(time.Second))))
	require.NoError(t, log.Append(ctx, testEvent("evt-3", "inventory.stock.adjusted", base.Add(2*time.Second))))
	require.NoError(t, log.MarkProcessed(ctx, "evt-1"))

	stats, err := log.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalEvents)
	require.Equal(t, int64(2), stats.UnprocessedEvents)
	require.Equal(t, int64(3), stats.UnsyncedEvents)
	require.Equal(t, int64(2), stats.EventsByPattern["sales.order.created"])
	require.Equal(t, int64(1), stats.EventsByPattern["inventory.stock.adjusted"])
	require.Equal(t, base, *stats.OldestEvent)
	require.Equal(t, base.Add(2*time.Second), *stats.NewestEvent)
}

func TestSnapshots_LatestPerPattern(t *testing.T) {
	log := NewEventLog(0)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.CreateSnapshot(ctx, &v1.Snapshot{
		ID: "snap-1", Pattern: "sales.order.created", Timestamp: base,
		Data: map[string]interface{}{"count": 1},
	}))
	require.NoError(t, log.CreateSnapshot(ctx, &v1.Snapshot{
		ID: "snap-2", Pattern: "sales.order.created", Timestamp: base.Add(time.Hour),
		Data: map[string]interface{}{"count": 7},
	}))
	require.NoError(t, log.CreateSnapshot(ctx, &v1.Snapshot{
		ID: "snap-3", Pattern: "inventory.stock.adjusted", Timestamp: base.Add(2 * time.Hour),
	}))

	latest, err := log.LatestSnapshot(ctx, "sales.order.created")
	require.NoError(t, err)
	require.Equal(t, "snap-2", latest.ID)

	_, err = log.LatestSnapshot(ctx, "kitchen.ticket.fired")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
