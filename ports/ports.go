// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/domain/billing"
	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/domain/fetch"
	"github.com/artpar/fetchvault/domain/idempotency"
	"github.com/artpar/fetchvault/domain/plan"
	"github.com/artpar/fetchvault/domain/ratelimit"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides API key hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Tenant is the billing/usage principal.
type Tenant struct {
	ID            string
	Name          string
	APIKeyHash    []byte // bcrypt hash of the tenant's API key
	Tier          plan.Tier
	CallbackURL   string // optional; empty disables outbound webhooks
	WebhookSecret string // optional; empty disables outbound webhooks
	StripeID      string // payment provider customer id
	Status        string // "active", "suspended"
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TenantStore persists tenants.
type TenantStore interface {
	// Get retrieves a tenant by ID.
	Get(ctx context.Context, id string) (Tenant, error)

	// GetByStripeID retrieves a tenant by payment provider customer id.
	GetByStripeID(ctx context.Context, customerID string) (Tenant, error)

	// Create stores a new tenant.
	Create(ctx context.Context, t Tenant) error

	// Update modifies an existing tenant.
	Update(ctx context.Context, t Tenant) error

	// List returns all tenants.
	List(ctx context.Context) ([]Tenant, error)
}

// CreditStore persists per-period credit usage and the ledger.
// Reserve must be atomic: concurrent reservations against the same
// tenant and period serialize inside the store, so the sum of granted
// reservations never exceeds the limit.
type CreditStore interface {
	// Reserve atomically checks and, when possible, consumes credits.
	// A failed reservation leaves the counter untouched and reports the
	// current figures.
	Reserve(ctx context.Context, tenantID string, periodStart time.Time, amount, limit int64, batchID string) (credit.CheckResult, error)

	// Refund returns credits, floored at zero, and appends a refund
	// ledger entry.
	Refund(ctx context.Context, tenantID string, periodStart time.Time, amount int64, batchID string) error

	// AddBandwidth adds downloaded bytes to the period counter.
	AddBandwidth(ctx context.Context, tenantID string, periodStart time.Time, bytes int64) error

	// Usage returns the current period counters for a tenant.
	Usage(ctx context.Context, tenantID string, periodStart time.Time) (credit.State, error)

	// Ledger returns the most recent ledger entries for a tenant.
	Ledger(ctx context.Context, tenantID string, limit int) ([]credit.LedgerEntry, error)
}

// RateLimitStore persists rate limit windows and abuse counters.
// GetAndCheck and RecordOutcome must be atomic per tenant.
type RateLimitStore interface {
	// GetAndCheck applies one admission attempt to the tenant's current
	// minute bucket. The attempt consumes window capacity even when
	// denied. An active abuse block short-circuits to denied with the
	// fixed block retry-after.
	GetAndCheck(ctx context.Context, tenantID string, limit int, now time.Time) (ratelimit.CheckResult, error)

	// RecordOutcome folds a completed HTTP exchange into the tenant's
	// abuse counters.
	RecordOutcome(ctx context.Context, tenantID string, statusCode int, now time.Time) error
}

// IdempotencyStore persists write-once response records.
type IdempotencyStore interface {
	// Lookup returns the cached record for a composite key, if any.
	Lookup(ctx context.Context, tenantID, route, key string) (idempotency.Record, bool, error)

	// Store writes a record unless one already exists for the composite
	// key (first writer wins; a duplicate write is a silent no-op).
	Store(ctx context.Context, rec idempotency.Record) error
}

// BatchStore is the in-flight batch registry (owned arena).
type BatchStore interface {
	// Create registers a new batch.
	Create(ctx context.Context, b batch.Batch) error

	// Get returns a snapshot of a batch.
	Get(ctx context.Context, id string) (batch.Batch, error)

	// Update applies fn to the batch under the store's write lock and
	// returns the resulting snapshot. fn runs exactly once.
	Update(ctx context.Context, id string, fn func(*batch.Batch)) (batch.Batch, error)

	// Claim marks a batch as owned by an orchestrator run. It returns
	// false if the batch was already claimed; no batch is processed by
	// two runs simultaneously.
	Claim(ctx context.Context, id string) (bool, error)

	// Sweep removes batches created before the cutoff and returns how
	// many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// EventMarker deduplicates externally-delivered events.
type EventMarker interface {
	// Claim records an event id with a TTL. It returns true only for
	// the first claim; later claims within the TTL return false.
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// Fetcher runs the external media fetch tool for one item.
type Fetcher interface {
	// Fetch downloads one item into outputDir, reporting progress
	// percentages (0-100) as the tool emits them. It returns the path
	// of the produced file. A non-nil error applies to this item only.
	Fetch(ctx context.Context, req fetch.Request, outputDir string, onProgress func(percent float64)) (string, error)
}

// ObjectStore uploads finished archive parts and hands back
// retrievable references. The storage protocol behind it is not this
// core's concern.
type ObjectStore interface {
	// Put uploads the file at localPath under key and returns a
	// reference a tenant can retrieve it by.
	Put(ctx context.Context, key, localPath string) (ref string, err error)
}

// PaymentProvider verifies and parses inbound billing webhooks.
type PaymentProvider interface {
	// Name returns the provider name (e.g. "stripe").
	Name() string

	// ParseWebhook verifies the signature against the raw payload and
	// returns the provider-neutral event. Verification failure is an
	// error; the event must not be applied.
	ParseWebhook(payload []byte, signature string) (billing.Event, error)
}
