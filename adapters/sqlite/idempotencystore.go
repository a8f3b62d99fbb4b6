package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/fetchvault/domain/idempotency"
	"github.com/artpar/fetchvault/ports"
)

// IdempotencyStore implements ports.IdempotencyStore using SQLite.
// Write-once semantics come from the primary key plus INSERT OR IGNORE:
// the first writer wins, a duplicate write changes nothing.
type IdempotencyStore struct {
	db    *DB
	clock ports.Clock
}

// NewIdempotencyStore creates a new SQLite idempotency store.
func NewIdempotencyStore(db *DB, clock ports.Clock) *IdempotencyStore {
	return &IdempotencyStore{db: db, clock: clock}
}

// Lookup returns the cached record for a composite key, if any.
// Expired records read as absent.
func (s *IdempotencyStore) Lookup(ctx context.Context, tenantID, route, key string) (idempotency.Record, bool, error) {
	rec := idempotency.Record{TenantID: tenantID, Route: route, Key: key}
	err := s.db.QueryRowContext(ctx, `
		SELECT status_code, body, created_at FROM idempotency_records
		WHERE tenant_id = ? AND route = ? AND idem_key = ?
	`, tenantID, route, key).Scan(&rec.StatusCode, &rec.Body, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, err
	}
	if idempotency.Expired(rec, s.clock.Now()) {
		return idempotency.Record{}, false, nil
	}
	return rec, true, nil
}

// Store writes a record unless one already exists for the composite key.
func (s *IdempotencyStore) Store(ctx context.Context, rec idempotency.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO idempotency_records
			(tenant_id, route, idem_key, status_code, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.TenantID, rec.Route, rec.Key, rec.StatusCode, rec.Body, rec.CreatedAt)
	return err
}

// Cleanup removes expired records and returns how many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-idempotency.TTL)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ensure interface compliance.
var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
