package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/storage"
)

// Reason names the strategy that flagged a duplicate.
type Reason string

const (
	ReasonOperationID         Reason = "operation_id"
	ReasonContentHash         Reason = "content_hash"
	ReasonSemanticSameClient  Reason = "semantic_same_client"
	ReasonSemanticCrossClient Reason = "semantic_cross_client"
)

// Result is the verdict of one duplicate check.
type Result struct {
	IsDupe   bool      `json:"is_dupe"`
	Reason   Reason    `json:"reason,omitempty"`
	Existing *Metadata `json:"existing,omitempty"`
}

var notDuplicate = Result{}

// EngineConfig tunes the engine. Zero values fall back to defaults.
type EngineConfig struct {
	// Enabled gates the whole subsystem. When false, IsDuplicate
	// always answers "not a duplicate" and StoreMetadata is a no-op.
	Enabled bool

	// DefaultWindow is the per-event dedup window.
	DefaultWindow time.Duration

	// CrossClientWindow is the tighter recency bound applied when the
	// only semantic matches come from other clients. Lower confidence
	// that two installations describing the same entity+action are
	// truly the same logical event.
	CrossClientWindow time.Duration

	// SweepInterval drives the background purge of aged metadata.
	SweepInterval time.Duration

	// MaxAge is how long metadata is retained before the sweep
	// removes it.
	MaxAge time.Duration

	// EntityIDFields overrides the probed payload identifier fields.
	EntityIDFields []string
}

const (
	defaultWindow            = 5 * time.Second
	defaultCrossClientWindow = 30 * time.Second
	defaultSweepInterval     = time.Hour
	defaultMaxAge            = 24 * time.Hour
)

func (c EngineConfig) normalized() EngineConfig {
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = defaultWindow
	}
	if c.CrossClientWindow <= 0 {
		c.CrossClientWindow = defaultCrossClientWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaultMaxAge
	}
	if len(c.EntityIDFields) == 0 {
		c.EntityIDFields = DefaultEntityIDFields
	}
	return c
}

// Engine orchestrates fingerprinting and the three ordered strategies.
// Store lookups that fail for internal reasons resolve as "not a
// duplicate": blocking legitimate traffic is worse than occasionally
// letting a repeat through.
type Engine struct {
	cfg      EngineConfig
	identity IdentityProvider
	store    Store
	nowFn    func() time.Time
}

// NewEngine builds a ready engine. The identity provider and store are
// constructed by the caller; a nil identity is a hard error because
// the operation-id strategy is unsound without a stable client id.
func NewEngine(cfg EngineConfig, identity IdentityProvider, store Store) (*Engine, error) {
	if identity == nil || identity.ClientID() == "" {
		return nil, fmt.Errorf("dedup: client identity unavailable")
	}
	if store == nil {
		return nil, fmt.Errorf("dedup: store must not be nil")
	}
	return &Engine{
		cfg:      cfg.normalized(),
		identity: identity,
		store:    store,
		nowFn:    time.Now,
	}, nil
}

// GenerateMetadata computes the three fingerprints for an event.
// Pure computation; fails only when the secure-random source needed
// for fallback operation ids is unavailable.
func (e *Engine) GenerateMetadata(event *v1.Event) (*Metadata, error) {
	contentHash, err := ContentHash(event)
	if err != nil {
		return nil, err
	}

	operationID, err := OperationID(event.Metadata)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		ContentHash: contentHash,
		OperationID: operationID,
		ClientID:    e.identity.ClientID(),
		SemanticKey: SemanticKey(event, e.cfg.EntityIDFields),
		Attempts:    0,
		Window:      e.cfg.DefaultWindow,
		Timestamp:   e.nowFn(),
	}, nil
}

// IsDuplicate evaluates the strategies in strict order, short-
// circuiting on the first match: operation id, content hash, semantic
// key. A fingerprint found outside its window is a legitimately new
// action (the same button clicked a day later), not a duplicate.
func (e *Engine) IsDuplicate(ctx context.Context, meta *Metadata) Result {
	if !e.cfg.Enabled {
		return notDuplicate
	}

	now := e.nowFn()

	if res, ok := e.checkOperation(ctx, meta, now); ok {
		return res
	}
	if res, ok := e.checkContent(ctx, meta, now); ok {
		return res
	}
	if res, ok := e.checkSemantic(ctx, meta, now); ok {
		return res
	}

	return notDuplicate
}

func (e *Engine) checkOperation(ctx context.Context, meta *Metadata, now time.Time) (Result, bool) {
	existing, err := e.store.GetByOperationID(ctx, meta.OperationID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("[Dedup] Operation lookup failed, failing open", "error", err)
		}
		return notDuplicate, false
	}

	if now.Sub(existing.Timestamp) <= meta.Window {
		return Result{IsDupe: true, Reason: ReasonOperationID, Existing: existing}, true
	}
	return notDuplicate, false
}

func (e *Engine) checkContent(ctx context.Context, meta *Metadata, now time.Time) (Result, bool) {
	existing, err := e.store.GetByContentHash(ctx, meta.ContentHash)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("[Dedup] Content lookup failed, failing open", "error", err)
		}
		return notDuplicate, false
	}

	if now.Sub(existing.Timestamp) <= meta.Window {
		return Result{IsDupe: true, Reason: ReasonContentHash, Existing: existing}, true
	}
	return notDuplicate, false
}

func (e *Engine) checkSemantic(ctx context.Context, meta *Metadata, now time.Time) (Result, bool) {
	matches, err := e.store.FindBySemanticKey(ctx, meta.SemanticKey, now.Add(-meta.Window))
	if err != nil {
		slog.Warn("[Dedup] Semantic lookup failed, failing open", "error", err)
		return notDuplicate, false
	}

	var crossClient *Metadata
	for _, m := range matches {
		if m.ClientID == meta.ClientID {
			// A client re-emitting its own action.
			return Result{IsDupe: true, Reason: ReasonSemanticSameClient, Existing: m}, true
		}
		if crossClient == nil {
			crossClient = m
		}
	}

	// Cross-client matches get a much tighter recency bound before
	// being called a duplicate.
	if crossClient != nil && now.Sub(crossClient.Timestamp) <= e.cfg.CrossClientWindow {
		return Result{IsDupe: true, Reason: ReasonSemanticCrossClient, Existing: crossClient}, true
	}
	return notDuplicate, false
}

// StoreMetadata upserts the fingerprint record. No-op when the
// subsystem is disabled.
func (e *Engine) StoreMetadata(ctx context.Context, meta *Metadata) error {
	if !e.cfg.Enabled {
		return nil
	}
	if err := e.store.Save(ctx, meta); err != nil {
		return fmt.Errorf("store dedup metadata: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the retry counter and persists the record.
func (e *Engine) IncrementAttempts(ctx context.Context, meta *Metadata) error {
	meta.Attempts++
	return e.StoreMetadata(ctx, meta)
}

// Sweep purges metadata older than MaxAge once. Used by RunSweeper and
// callable directly by maintenance tooling.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	cutoff := e.nowFn().Add(-e.cfg.MaxAge)
	return e.store.PurgeOlderThan(ctx, cutoff)
}

// RunSweeper purges aged metadata on SweepInterval until the context
// is cancelled. Sweep failures are logged; the ticker keeps running.
func (e *Engine) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	slog.Info("[Dedup] Starting metadata sweeper",
		"interval", e.cfg.SweepInterval,
		"max_age", e.cfg.MaxAge,
	)

	for {
		select {
		case <-ticker.C:
			removed, err := e.Sweep(ctx)
			if err != nil {
				slog.Error("[Dedup] Sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("[Dedup] Purged aged metadata", "removed", removed)
			}
		case <-ctx.Done():
			slog.Info("[Dedup] Sweeper stopping (context cancelled)")
			return nil
		}
	}
}
