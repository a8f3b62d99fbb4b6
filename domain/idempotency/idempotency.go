// Package idempotency provides value types and pure functions for
// idempotent request replay. Records are write-once: the first writer
// for a (tenant, route, key) wins and later writes are no-ops, which
// the stores enforce.
package idempotency

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TTL is how long a cached response stays replayable. Long enough for
// any sane client retry window, short enough to bound growth.
const TTL = 24 * time.Hour

// ErrInvalidKey is returned for keys that are not canonical UUIDs.
var ErrInvalidKey = errors.New("idempotency key must be a canonical UUID")

// Record is a cached response for one idempotent request (value type).
type Record struct {
	TenantID   string
	Route      string // method + path, e.g. "POST /v1/batches"
	Key        string
	StatusCode int
	Body       []byte
	CreatedAt  time.Time
}

// ValidateKey rejects keys that are not in canonical 36-character UUID
// form. uuid.Parse alone is too permissive (it accepts braced, URN and
// undashed forms), so the length is pinned first.
// This is a PURE function.
func ValidateKey(key string) error {
	if len(key) != 36 {
		return ErrInvalidKey
	}
	if _, err := uuid.Parse(key); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// Expired reports whether the record's TTL has lapsed at `now`.
// This is a PURE function.
func Expired(r Record, now time.Time) bool {
	return now.Sub(r.CreatedAt) >= TTL
}
