package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/offlinekit/eventcore/internal/core/storage"
	"github.com/offlinekit/eventcore/internal/dedup"
)

// DedupAdapter implements dedup.Store for SQLite.
type DedupAdapter struct {
	db *sql.DB
}

func NewDedupAdapter(db *sql.DB) *DedupAdapter {
	return &DedupAdapter{db: db}
}

func (a *DedupAdapter) GetByContentHash(ctx context.Context, hash string) (*dedup.Metadata, error) {
	return a.getOne(ctx, queryDedupByContentHash, hash)
}

func (a *DedupAdapter) GetByOperationID(ctx context.Context, operationID string) (*dedup.Metadata, error) {
	return a.getOne(ctx, queryDedupByOperationID, operationID)
}

func (a *DedupAdapter) getOne(ctx context.Context, query string, key string) (*dedup.Metadata, error) {
	meta, err := scanDedupRow(a.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return meta, nil
}

func (a *DedupAdapter) FindBySemanticKey(ctx context.Context, key string, since time.Time) ([]*dedup.Metadata, error) {
	rows, err := a.db.QueryContext(ctx, queryDedupBySemanticKey, key, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query by semantic key: %w", err)
	}
	defer rows.Close()

	var out []*dedup.Metadata
	for rows.Next() {
		meta, err := scanDedupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dedup rows: %w", err)
	}

	return out, nil
}

func (a *DedupAdapter) Save(ctx context.Context, meta *dedup.Metadata) error {
	_, err := a.db.ExecContext(ctx, querySaveDedup,
		meta.ContentHash,
		meta.OperationID,
		meta.ClientID,
		meta.SemanticKey,
		meta.Attempts,
		meta.Window.Milliseconds(),
		toMillis(meta.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save dedup metadata: %w", err)
	}
	return nil
}

func (a *DedupAdapter) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, queryPurgeDedup, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge dedup metadata: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	return removed, nil
}

func scanDedupRow(row scanner) (*dedup.Metadata, error) {
	var (
		meta     dedup.Metadata
		windowMS int64
		ts       int64
	)

	err := row.Scan(
		&meta.ContentHash,
		&meta.OperationID,
		&meta.ClientID,
		&meta.SemanticKey,
		&meta.Attempts,
		&windowMS,
		&ts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dedup row: %w", err)
	}

	meta.Window = time.Duration(windowMS) * time.Millisecond
	meta.Timestamp = fromMillis(ts)
	return &meta, nil
}

var _ dedup.Store = (*DedupAdapter)(nil)
