// Package memory provides in-memory implementations of storage ports.
// They are the default for development and tests; the sqlite adapters
// back the same ports for persistent deployments.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/ports"
)

// creditShard is a single shard of the credit store.
type creditShard struct {
	mu     sync.Mutex
	usage  map[string]credit.State
	ledger map[string][]credit.LedgerEntry // tenant id → entries, newest last
}

// CreditStore is a sharded in-memory implementation of ports.CreditStore.
// Reservations for the same tenant serialize on the shard mutex, which
// makes the read-check-increment a single atomic step.
type CreditStore struct {
	shards    []*creditShard
	numShards int
	nextID    func() string
	clock     ports.Clock
}

// CreditStoreConfig configures the credit store.
type CreditStoreConfig struct {
	NumShards int              // default: 32
	IDGen     ports.IDGenerator // for ledger entry ids
	Clock     ports.Clock
}

// NewCreditStore creates a new sharded in-memory credit store.
func NewCreditStore(cfg CreditStoreConfig) *CreditStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	idGen := cfg.IDGen
	next := func() string {
		if idGen != nil {
			return idGen.New()
		}
		return ""
	}

	s := &CreditStore{
		shards:    make([]*creditShard, cfg.NumShards),
		numShards: cfg.NumShards,
		nextID:    next,
		clock:     cfg.Clock,
	}
	for i := range s.shards {
		s.shards[i] = &creditShard{
			usage:  make(map[string]credit.State),
			ledger: make(map[string][]credit.LedgerEntry),
		}
	}
	return s
}

// key generates the map key for a tenant and period.
func (s *CreditStore) key(tenantID string, periodStart time.Time) string {
	return fmt.Sprintf("%s:%s", tenantID, periodStart.UTC().Format("2006-01"))
}

// getShard returns the shard for a tenant. Sharding by tenant (not by
// tenant+period) keeps a tenant's usage and ledger on one mutex.
func (s *CreditStore) getShard(tenantID string) *creditShard {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Reserve atomically checks and consumes credits for a period.
func (s *CreditStore) Reserve(ctx context.Context, tenantID string, periodStart time.Time, amount, limit int64, batchID string) (credit.CheckResult, error) {
	k := s.key(tenantID, periodStart)
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.usage[k]
	if !ok {
		state = credit.State{TenantID: tenantID, PeriodStart: credit.PeriodStart(periodStart)}
	}

	result := credit.Check(state.Used, limit, amount)
	if !result.OK {
		return result, nil
	}

	state.Used += amount
	shard.usage[k] = state
	shard.ledger[tenantID] = append(shard.ledger[tenantID], credit.LedgerEntry{
		ID:       s.nextID(),
		TenantID: tenantID,
		BatchID:  batchID,
		Amount:   amount,
		At:       s.clock.Now().UTC(),
	})

	result.Used = state.Used
	result.Available = limit - state.Used
	if result.Available < 0 {
		result.Available = 0
	}
	return result, nil
}

// Refund returns credits, floored at zero.
func (s *CreditStore) Refund(ctx context.Context, tenantID string, periodStart time.Time, amount int64, batchID string) error {
	k := s.key(tenantID, periodStart)
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.usage[k]
	if !ok {
		state = credit.State{TenantID: tenantID, PeriodStart: credit.PeriodStart(periodStart)}
	}
	state.Used = credit.ApplyRefund(state.Used, amount)
	shard.usage[k] = state
	shard.ledger[tenantID] = append(shard.ledger[tenantID], credit.LedgerEntry{
		ID:       s.nextID(),
		TenantID: tenantID,
		BatchID:  batchID,
		Amount:   -amount,
		At:       s.clock.Now().UTC(),
	})
	return nil
}

// AddBandwidth adds downloaded bytes to the period counter.
func (s *CreditStore) AddBandwidth(ctx context.Context, tenantID string, periodStart time.Time, bytes int64) error {
	k := s.key(tenantID, periodStart)
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.usage[k]
	if !ok {
		state = credit.State{TenantID: tenantID, PeriodStart: credit.PeriodStart(periodStart)}
	}
	state.BandwidthBytes += bytes
	shard.usage[k] = state
	return nil
}

// Usage returns the current period counters for a tenant.
func (s *CreditStore) Usage(ctx context.Context, tenantID string, periodStart time.Time) (credit.State, error) {
	k := s.key(tenantID, periodStart)
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.usage[k]
	if !ok {
		return credit.State{TenantID: tenantID, PeriodStart: credit.PeriodStart(periodStart)}, nil
	}
	return state, nil
}

// Ledger returns the most recent ledger entries for a tenant, newest first.
func (s *CreditStore) Ledger(ctx context.Context, tenantID string, limit int) ([]credit.LedgerEntry, error) {
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entries := shard.ledger[tenantID]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]credit.LedgerEntry, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Ensure interface compliance.
var _ ports.CreditStore = (*CreditStore)(nil)
