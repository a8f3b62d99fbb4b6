package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/ports"
)

// CreditStore implements ports.CreditStore using SQLite.
// Atomicity comes from running the whole read-check-increment inside a
// single IMMEDIATE transaction: SQLite's write lock serializes racing
// reservations, so two submissions can never both pass the availability
// check on the same balance.
type CreditStore struct {
	db    *DB
	idGen ports.IDGenerator
	clock ports.Clock
}

// NewCreditStore creates a new SQLite credit store.
func NewCreditStore(db *DB, idGen ports.IDGenerator, clock ports.Clock) *CreditStore {
	return &CreditStore{db: db, idGen: idGen, clock: clock}
}

// Reserve atomically checks and consumes credits for a period.
func (s *CreditStore) Reserve(ctx context.Context, tenantID string, periodStart time.Time, amount, limit int64, batchID string) (credit.CheckResult, error) {
	period := credit.PeriodStart(periodStart)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return credit.CheckResult{}, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback()

	// Take the write lock up front so the SELECT below reads a state
	// no other reservation can change before we commit.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO usage_periods (tenant_id, period_start)
		VALUES (?, ?)
		ON CONFLICT(tenant_id, period_start) DO NOTHING
	`, tenantID, period); err != nil {
		return credit.CheckResult{}, fmt.Errorf("ensure usage period: %w", err)
	}

	var used int64
	if err := tx.QueryRowContext(ctx, `
		SELECT credits_used FROM usage_periods
		WHERE tenant_id = ? AND period_start = ?
	`, tenantID, period).Scan(&used); err != nil {
		return credit.CheckResult{}, fmt.Errorf("read usage: %w", err)
	}

	result := credit.Check(used, limit, amount)
	if !result.OK {
		return result, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE usage_periods SET credits_used = credits_used + ?
		WHERE tenant_id = ? AND period_start = ?
	`, amount, tenantID, period); err != nil {
		return credit.CheckResult{}, fmt.Errorf("increment usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, tenant_id, batch_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.idGen.New(), tenantID, batchID, amount, s.clock.Now().UTC()); err != nil {
		return credit.CheckResult{}, fmt.Errorf("append ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return credit.CheckResult{}, fmt.Errorf("commit reserve: %w", err)
	}

	result.Used = used + amount
	result.Available = limit - result.Used
	if result.Available < 0 {
		result.Available = 0
	}
	return result, nil
}

// Refund returns credits, floored at zero, with a refund ledger entry.
func (s *CreditStore) Refund(ctx context.Context, tenantID string, periodStart time.Time, amount int64, batchID string) error {
	period := credit.PeriodStart(periodStart)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refund: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE usage_periods SET credits_used = MAX(0, credits_used - ?)
		WHERE tenant_id = ? AND period_start = ?
	`, amount, tenantID, period); err != nil {
		return fmt.Errorf("decrement usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, tenant_id, batch_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.idGen.New(), tenantID, batchID, -amount, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("append refund ledger: %w", err)
	}

	return tx.Commit()
}

// AddBandwidth adds downloaded bytes to the period counter.
func (s *CreditStore) AddBandwidth(ctx context.Context, tenantID string, periodStart time.Time, bytes int64) error {
	period := credit.PeriodStart(periodStart)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_periods (tenant_id, period_start, bandwidth_bytes)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, period_start) DO UPDATE SET
			bandwidth_bytes = bandwidth_bytes + excluded.bandwidth_bytes
	`, tenantID, period, bytes)
	return err
}

// Usage returns the current period counters for a tenant.
func (s *CreditStore) Usage(ctx context.Context, tenantID string, periodStart time.Time) (credit.State, error) {
	period := credit.PeriodStart(periodStart)
	state := credit.State{TenantID: tenantID, PeriodStart: period}

	err := s.db.QueryRowContext(ctx, `
		SELECT credits_used, bandwidth_bytes FROM usage_periods
		WHERE tenant_id = ? AND period_start = ?
	`, tenantID, period).Scan(&state.Used, &state.BandwidthBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return credit.State{}, err
	}
	return state, nil
}

// Ledger returns the most recent ledger entries for a tenant, newest first.
func (s *CreditStore) Ledger(ctx context.Context, tenantID string, limit int) ([]credit.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, batch_id, amount, created_at
		FROM credit_ledger
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []credit.LedgerEntry
	for rows.Next() {
		var e credit.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.BatchID, &e.Amount, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ensure interface compliance.
var _ ports.CreditStore = (*CreditStore)(nil)
