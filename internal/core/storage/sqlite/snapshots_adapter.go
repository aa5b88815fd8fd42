package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

// SnapshotAdapter implements storage.SnapshotStore for SQLite.
type SnapshotAdapter struct {
	db *sql.DB
}

func NewSnapshotAdapter(db *sql.DB) *SnapshotAdapter {
	return &SnapshotAdapter{db: db}
}

func (a *SnapshotAdapter) CreateSnapshot(ctx context.Context, snap *v1.Snapshot) error {
	dataJSON, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot data: %w", err)
	}

	_, err = a.db.ExecContext(ctx, querySaveSnapshot,
		snap.ID,
		snap.Pattern,
		dataJSON,
		toMillis(snap.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (a *SnapshotAdapter) LatestSnapshot(ctx context.Context, pattern string) (*v1.Snapshot, error) {
	var (
		snap     v1.Snapshot
		dataJSON []byte
		ts       int64
	)

	err := a.db.QueryRowContext(ctx, queryLatestSnapshot, pattern).Scan(
		&snap.ID,
		&snap.Pattern,
		&dataJSON,
		&ts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap.Timestamp = fromMillis(ts)
	if err := json.Unmarshal(dataJSON, &snap.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot data: %w", err)
	}

	return &snap, nil
}

var _ storage.SnapshotStore = (*SnapshotAdapter)(nil)
