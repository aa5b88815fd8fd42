package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/offlinekit/eventcore/internal/core/storage"
	"github.com/offlinekit/eventcore/internal/dedup"
)

// DedupStore is an in-memory dedup.Store: records keyed by content
// hash with a secondary unique operation-id index, mirroring the
// persistent layout.
type DedupStore struct {
	mu          sync.RWMutex
	byHash      map[string]*dedup.Metadata
	byOperation map[string]string // operation id -> content hash
}

func NewDedupStore() *DedupStore {
	return &DedupStore{
		byHash:      make(map[string]*dedup.Metadata),
		byOperation: make(map[string]string),
	}
}

func (s *DedupStore) GetByContentHash(ctx context.Context, hash string) (*dedup.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, exists := s.byHash[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *meta
	return &copy, nil
}

func (s *DedupStore) GetByOperationID(ctx context.Context, operationID string) (*dedup.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, exists := s.byOperation[operationID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *s.byHash[hash]
	return &copy, nil
}

func (s *DedupStore) FindBySemanticKey(ctx context.Context, key string, since time.Time) ([]*dedup.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*dedup.Metadata
	for _, meta := range s.byHash {
		if meta.SemanticKey != key || meta.Timestamp.Before(since) {
			continue
		}
		copy := *meta
		out = append(out, &copy)
	}
	// Newest first, matching the persistent adapter's index order.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Save upserts, displacing any row that collides on either unique key.
func (s *DedupStore) Save(ctx context.Context, meta *dedup.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.byHash[meta.ContentHash]; exists {
		delete(s.byOperation, prev.OperationID)
	}
	if prevHash, exists := s.byOperation[meta.OperationID]; exists {
		delete(s.byHash, prevHash)
	}

	copy := *meta
	s.byHash[copy.ContentHash] = &copy
	s.byOperation[copy.OperationID] = copy.ContentHash
	return nil
}

func (s *DedupStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for hash, meta := range s.byHash {
		if meta.Timestamp.Before(cutoff) {
			delete(s.byHash, hash)
			delete(s.byOperation, meta.OperationID)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of tracked fingerprints. Used in tests.
func (s *DedupStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}

var _ dedup.Store = (*DedupStore)(nil)
