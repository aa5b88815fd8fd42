package sqlite

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

func newMockEventAdapter(t *testing.T, maxHistory int) (*EventAdapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := NewEventAdapter(db, maxHistory)
	adapter.nowFn = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return adapter, mock, db
}

func eventRowColumns() []string {
	return []string{
		"id", "pattern", "source", "payload", "metadata",
		"ts", "stored_at", "processed", "synced", "retry_count", "last_error",
	}
}

func TestEventAdapter_Append(t *testing.T) {
	ts := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	event := &v1.Event{
		ID:        "evt-1",
		Pattern:   "sales.order.created",
		Timestamp: ts,
		Source:    "pos-1",
		Metadata:  &v1.Metadata{Priority: "high"},
		Payload:   map[string]interface{}{"orderId": "o-1"},
	}

	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryAppendEvent)).
		WithArgs(
			event.ID,
			event.Pattern,
			event.Source,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			"high",
			toMillis(ts),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.Append(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_AppendDuplicateIDIsNoOp(t *testing.T) {
	ts := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	event := &v1.Event{
		ID:        "evt-1",
		Pattern:   "sales.order.created",
		Timestamp: ts,
		Source:    "pos-1",
		Payload:   map[string]interface{}{"orderId": "o-1"},
	}

	// maxHistory set: retention must still be skipped when nothing was
	// inserted.
	adapter, mock, db := newMockEventAdapter(t, 10)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryAppendEvent)).
		WithArgs(
			event.ID,
			event.Pattern,
			event.Source,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			nil,
			toMillis(ts),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.Append(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_AppendEnforcesRetention(t *testing.T) {
	ts := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	event := &v1.Event{
		ID:        "evt-4",
		Pattern:   "sales.order.created",
		Timestamp: ts,
		Source:    "pos-1",
		Payload:   map[string]interface{}{"orderId": "o-4"},
	}

	adapter, mock, db := newMockEventAdapter(t, 2)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryAppendEvent)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(queryCountEvents)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteOldest)).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.Append(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_Get(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	ts := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(queryGetEvent)).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).AddRow(
			"evt-1",
			"sales.order.created",
			"pos-1",
			[]byte(`{"orderId":"o-1"}`),
			[]byte(`{"priority":"high"}`),
			toMillis(ts),
			toMillis(ts.Add(time.Second)),
			true,
			false,
			2,
			"sync timeout",
		))

	stored, err := adapter.Get(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Equal(t, "evt-1", stored.ID)
	require.Equal(t, "o-1", stored.Payload["orderId"])
	require.Equal(t, "high", stored.Metadata.Priority)
	require.Equal(t, ts, stored.Timestamp)
	require.True(t, stored.Processed)
	require.False(t, stored.Synced)
	require.Equal(t, 2, stored.RetryCount)
	require.Equal(t, "sync timeout", stored.LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_GetNotFound(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryGetEvent)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := adapter.Get(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_QueryBuildsPredicates(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	from := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	processed := false

	expected := "SELECT " + selectEventColumns + " FROM events" +
		" WHERE pattern = ? AND source = ? AND ts >= ? AND ts <= ? AND processed = ?" +
		" ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?"

	mock.ExpectQuery(regexp.QuoteMeta(expected)).
		WithArgs("sales.order.created", "pos-1", toMillis(from), toMillis(to), false, 10, 5).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).AddRow(
			"evt-1",
			"sales.order.created",
			"pos-1",
			[]byte(`{"orderId":"o-1"}`),
			nil,
			toMillis(from.Add(time.Hour)),
			toMillis(from.Add(time.Hour)),
			false,
			false,
			0,
			nil,
		)).RowsWillBeClosed()

	events, err := adapter.Query(context.Background(), storage.QueryOptions{
		Pattern:   "sales.order.created",
		Source:    "pos-1",
		From:      from,
		To:        to,
		Processed: &processed,
		Limit:     10,
		Offset:    5,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "evt-1", events[0].ID)
	require.Nil(t, events[0].Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_QueryDefaultsLimit(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	expected := "SELECT " + selectEventColumns + " FROM events" +
		" ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?"

	mock.ExpectQuery(regexp.QuoteMeta(expected)).
		WithArgs(storage.DefaultQueryLimit, 0).
		WillReturnRows(sqlmock.NewRows(eventRowColumns())).
		RowsWillBeClosed()

	events, err := adapter.Query(context.Background(), storage.QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, events)
	require.NotNil(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_Marks(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryMarkProcessed)).
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryMarkSynced)).
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryMarkFailed)).
		WithArgs("sync timeout", "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, adapter.MarkProcessed(ctx, "evt-1"))
	require.NoError(t, adapter.MarkSynced(ctx, "evt-1"))
	require.NoError(t, adapter.MarkFailed(ctx, "evt-1", "sync timeout"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_MarkMissingIDIsSuccess(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryMarkProcessed)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.MarkProcessed(context.Background(), "missing"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_Cleanup(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	before := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(queryCleanup)).
		WithArgs(toMillis(before)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := adapter.Cleanup(context.Background(), before)
	require.NoError(t, err)
	require.Equal(t, int64(7), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_Stats(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	oldest := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryStatsAggregate)).
		WillReturnRows(sqlmock.NewRows([]string{
			"total", "unprocessed", "unsynced", "size", "oldest", "newest",
		}).AddRow(int64(10), int64(3), int64(5), int64(2048), toMillis(oldest), toMillis(newest)))

	mock.ExpectQuery(regexp.QuoteMeta(queryStatsByPattern)).
		WillReturnRows(sqlmock.NewRows([]string{"pattern", "count"}).
			AddRow("sales.order.created", int64(6)).
			AddRow("inventory.stock.adjusted", int64(4)),
		).RowsWillBeClosed()

	stats, err := adapter.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(10), stats.TotalEvents)
	require.Equal(t, int64(3), stats.UnprocessedEvents)
	require.Equal(t, int64(5), stats.UnsyncedEvents)
	require.Equal(t, int64(2048), stats.StorageSize)
	require.Equal(t, oldest, *stats.OldestEvent)
	require.Equal(t, newest, *stats.NewestEvent)
	require.Equal(t, int64(6), stats.EventsByPattern["sales.order.created"])
	require.Equal(t, int64(4), stats.EventsByPattern["inventory.stock.adjusted"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAdapter_StatsEmptyLog(t *testing.T) {
	adapter, mock, db := newMockEventAdapter(t, 0)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryStatsAggregate)).
		WillReturnRows(sqlmock.NewRows([]string{
			"total", "unprocessed", "unsynced", "size", "oldest", "newest",
		}).AddRow(int64(0), int64(0), int64(0), int64(0), nil, nil))

	mock.ExpectQuery(regexp.QuoteMeta(queryStatsByPattern)).
		WillReturnRows(sqlmock.NewRows([]string{"pattern", "count"})).
		RowsWillBeClosed()

	stats, err := adapter.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.TotalEvents)
	require.Nil(t, stats.OldestEvent)
	require.Nil(t, stats.NewestEvent)
	require.NoError(t, mock.ExpectationsWereMet())
}
