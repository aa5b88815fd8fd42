package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

// toMillis converts a timestamp to the integer form stored in the
// database. All stored times are UTC Unix milliseconds.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// marshalEventJSON marshals an event's payload and metadata.
// Nil metadata produces SQL NULL rather than the JSON "null" string.
func marshalEventJSON(event *v1.Event) (payloadJSON []byte, metadataJSON []byte, err error) {
	payloadJSON, err = json.Marshal(event.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	return payloadJSON, metadataJSON, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanStoredEvent scans one row of selectEventColumns.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanStoredEvent(row scanner) (*storage.StoredEvent, error) {
	var (
		ev           storage.StoredEvent
		payloadJSON  []byte
		metadataJSON []byte
		ts           int64
		storedAt     int64
		lastError    sql.NullString
	)

	err := row.Scan(
		&ev.ID,
		&ev.Pattern,
		&ev.Source,
		&payloadJSON,
		&metadataJSON,
		&ts,
		&storedAt,
		&ev.Processed,
		&ev.Synced,
		&ev.RetryCount,
		&lastError,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	ev.Timestamp = fromMillis(ts)
	ev.StoredAt = fromMillis(storedAt)
	ev.LastError = lastError.String

	if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &ev, nil
}

// collectEvents drains rows into bookkeeping-stripped events.
func collectEvents(rows *sql.Rows) ([]*v1.Event, error) {
	defer rows.Close()

	events := []*v1.Event{}
	for rows.Next() {
		stored, err := scanStoredEvent(rows)
		if err != nil {
			return nil, err
		}
		ev := stored.Event
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}
