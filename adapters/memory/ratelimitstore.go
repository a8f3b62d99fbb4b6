package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/fetchvault/domain/ratelimit"
	"github.com/artpar/fetchvault/ports"
)

// rateLimitShard is a single shard of the rate limit store.
type rateLimitShard struct {
	mu     sync.Mutex
	window map[string]ratelimit.WindowState
	abuse  map[string]ratelimit.AbuseState
}

// RateLimitStore is a sharded in-memory implementation of
// ports.RateLimitStore. The window increment and the abuse-block check
// happen under one shard lock, so two racing submissions cannot both
// read the pre-increment count.
type RateLimitStore struct {
	shards    []*rateLimitShard
	numShards int
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// RateLimitStoreConfig configures the rate limit store.
type RateLimitStoreConfig struct {
	NumShards       int           // default: 32
	CleanupInterval time.Duration // default: 5m
}

// NewRateLimitStore creates a new sharded in-memory rate limit store.
func NewRateLimitStore(cfg RateLimitStoreConfig) *RateLimitStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	s := &RateLimitStore{
		shards:    make([]*rateLimitShard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &rateLimitShard{
			window: make(map[string]ratelimit.WindowState),
			abuse:  make(map[string]ratelimit.AbuseState),
		}
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// getShard returns the shard for a tenant using consistent hashing.
func (s *RateLimitStore) getShard(tenantID string) *rateLimitShard {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// GetAndCheck applies one admission attempt to the tenant's window.
func (s *RateLimitStore) GetAndCheck(ctx context.Context, tenantID string, limit int, now time.Time) (ratelimit.CheckResult, error) {
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if ratelimit.Blocked(shard.abuse[tenantID], now) {
		return ratelimit.CheckResult{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    shard.abuse[tenantID].BlockedUntil,
			RetryAfter: ratelimit.AbuseBlockDuration,
			Reason:     ratelimit.ReasonBlocked,
		}, nil
	}

	result, newState := ratelimit.Check(shard.window[tenantID], limit, now)
	shard.window[tenantID] = newState
	return result, nil
}

// RecordOutcome folds a completed HTTP exchange into the abuse counters.
func (s *RateLimitStore) RecordOutcome(ctx context.Context, tenantID string, statusCode int, now time.Time) error {
	shard := s.getShard(tenantID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.abuse[tenantID] = ratelimit.RecordOutcome(shard.abuse[tenantID], statusCode, now)
	return nil
}

// cleanupLoop periodically removes expired entries.
func (s *RateLimitStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.doCleanup()
		case <-s.done:
			return
		}
	}
}

// doCleanup drops window buckets and abuse counters that are long past.
func (s *RateLimitStore) doCleanup() {
	now := time.Now()
	// Keep a bucket a little past its window so boundary reads stay sane.
	minBucket := ratelimit.BucketFor(now.Add(-2 * time.Minute))

	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, state := range shard.window {
			if state.Bucket < minBucket {
				delete(shard.window, k)
			}
		}
		for k, state := range shard.abuse {
			stale := now.Sub(state.WindowStart) > 2*ratelimit.AbuseWindow
			if stale && !ratelimit.Blocked(state, now) {
				delete(shard.abuse, k)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *RateLimitStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Ensure interface compliance.
var _ ports.RateLimitStore = (*RateLimitStore)(nil)
