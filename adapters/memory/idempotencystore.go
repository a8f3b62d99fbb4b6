package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/fetchvault/domain/idempotency"
	"github.com/artpar/fetchvault/ports"
)

// IdempotencyStore is an in-memory write-once response cache.
type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
	clock   ports.Clock
}

// NewIdempotencyStore creates a new in-memory idempotency store.
func NewIdempotencyStore(clock ports.Clock) *IdempotencyStore {
	if clock == nil {
		clock = realClock{}
	}
	return &IdempotencyStore{
		records: make(map[string]idempotency.Record),
		clock:   clock,
	}
}

func idemKey(tenantID, route, key string) string {
	return tenantID + "\x00" + route + "\x00" + key
}

// Lookup returns the cached record for a composite key, if any.
// Expired records read as absent.
func (s *IdempotencyStore) Lookup(ctx context.Context, tenantID, route, key string) (idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[idemKey(tenantID, route, key)]
	if !ok || idempotency.Expired(rec, s.clock.Now()) {
		return idempotency.Record{}, false, nil
	}
	return rec, true, nil
}

// Store writes a record unless a live one already exists (first writer
// wins). Storing over an expired record replaces it.
func (s *IdempotencyStore) Store(ctx context.Context, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey(rec.TenantID, rec.Route, rec.Key)
	if existing, ok := s.records[k]; ok && !idempotency.Expired(existing, s.clock.Now()) {
		return nil
	}
	s.records[k] = rec
	return nil
}

// Sweep removes expired records and returns how many were removed.
func (s *IdempotencyStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, rec := range s.records {
		if idempotency.Expired(rec, now) {
			delete(s.records, k)
			removed++
		}
	}
	return removed
}

// Ensure interface compliance.
var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
