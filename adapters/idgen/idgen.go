// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/fetchvault/ports"
	"github.com/google/uuid"
)

// UUID generates UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)
