package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/ports"
)

// ErrBatchNotFound is returned for unknown or swept batch ids.
var ErrBatchNotFound = errors.New("batch not found")

// batchEntry is one arena slot: the working copy plus its claim flag.
type batchEntry struct {
	b       batch.Batch
	claimed bool
}

// BatchStore is the in-memory batch arena. A single RWMutex is enough:
// writers are the per-batch orchestrator runs, readers are polling
// clients that only take snapshots.
type BatchStore struct {
	mu      sync.RWMutex
	entries map[string]*batchEntry
}

// NewBatchStore creates a new in-memory batch store.
func NewBatchStore() *BatchStore {
	return &BatchStore{entries: make(map[string]*batchEntry)}
}

// Create registers a new batch.
func (s *BatchStore) Create(ctx context.Context, b batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[b.ID]; exists {
		return errors.New("batch already exists: " + b.ID)
	}
	s.entries[b.ID] = &batchEntry{b: batch.Clone(b)}
	return nil
}

// Get returns a snapshot of a batch.
func (s *BatchStore) Get(ctx context.Context, id string) (batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return batch.Batch{}, ErrBatchNotFound
	}
	return batch.Clone(entry.b), nil
}

// Update applies fn to the batch under the write lock and returns the
// resulting snapshot.
func (s *BatchStore) Update(ctx context.Context, id string, fn func(*batch.Batch)) (batch.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return batch.Batch{}, ErrBatchNotFound
	}
	fn(&entry.b)
	return batch.Clone(entry.b), nil
}

// Claim marks a batch as owned by an orchestrator run. The first
// claimer wins; a batch is never processed twice concurrently.
func (s *BatchStore) Claim(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false, ErrBatchNotFound
	}
	if entry.claimed {
		return false, nil
	}
	entry.claimed = true
	return true, nil
}

// Sweep removes batches created before the cutoff.
func (s *BatchStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if entry.b.CreatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of registered batches (for testing).
func (s *BatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure interface compliance.
var _ ports.BatchStore = (*BatchStore)(nil)
