// Package dedup prevents the same logical operation from being
// processed twice under retry, reconnection, or multi-tab conditions.
// It derives three increasingly fuzzy identities per event (content
// hash, operation id, semantic key) and checks them against a
// persistent metadata store in strict order.
package dedup

import (
	"context"
	"time"
)

// Metadata is the fingerprint record derived for one event.
// Created at emit time, persisted on successful (non-duplicate)
// processing, mutated only to bump Attempts, purged by the age sweep.
type Metadata struct {
	// ContentHash is the stable hash of the normalized
	// {pattern, payload, source} triple. Primary key in the store.
	ContentHash string `json:"content_hash"`

	// OperationID identifies one user action. Deterministic when the
	// event carries a client operation id or user id; random otherwise.
	// Secondary unique index in the store.
	OperationID string `json:"operation_id"`

	// ClientID is the stable per-installation identity of the emitter.
	ClientID string `json:"client_id"`

	// SemanticKey is "{pattern}:{entityId}".
	SemanticKey string `json:"semantic_key"`

	// Attempts counts retries of this fingerprint.
	Attempts int `json:"attempts"`

	// Window is the dedup time window applied to this event.
	Window time.Duration `json:"window_ms"`

	// Timestamp is when the fingerprint was generated.
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence the engine needs: a keyed table of Metadata
// with secondary lookups. Implemented by the sqlite and memory
// adapters.
type Store interface {
	// GetByContentHash returns the record for a content hash, or
	// storage.ErrNotFound.
	GetByContentHash(ctx context.Context, hash string) (*Metadata, error)

	// GetByOperationID returns the record for an operation id, or
	// storage.ErrNotFound.
	GetByOperationID(ctx context.Context, operationID string) (*Metadata, error)

	// FindBySemanticKey returns all records sharing a semantic key
	// with Timestamp >= since, newest first.
	FindBySemanticKey(ctx context.Context, key string, since time.Time) ([]*Metadata, error)

	// Save upserts a record. A row colliding on either the content
	// hash or the operation id is replaced.
	Save(ctx context.Context, meta *Metadata) error

	// PurgeOlderThan removes records with Timestamp < cutoff and
	// returns the number removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
