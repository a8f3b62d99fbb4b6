// Package credit provides pure functions for monthly credit accounting.
// All functions are deterministic with no side effects; atomicity of
// reservations is the concern of the stores implementing ports.CreditStore.
package credit

import "time"

// State is the usage counter for one tenant and billing period (value type).
type State struct {
	TenantID       string
	PeriodStart    time.Time // first of month, UTC
	Used           int64     // credits consumed; never negative
	BandwidthBytes int64     // bytes downloaded in the period
}

// CheckResult is the outcome of an availability check (value type).
type CheckResult struct {
	OK        bool
	Used      int64
	Available int64
	Needed    int64
	Limit     int64
}

// LedgerEntry is an immutable record of a credit movement.
// Positive amounts are deductions, negative amounts are refunds.
type LedgerEntry struct {
	ID       string
	TenantID string
	BatchID  string
	Amount   int64
	At       time.Time
}

// Cost returns the credit cost of a submission: one credit per URL.
// This is a PURE function.
func Cost(itemCount int) int64 {
	if itemCount < 0 {
		return 0
	}
	return int64(itemCount)
}

// Check reports whether `needed` credits fit in the remaining balance.
// It never mutates anything; the caller pairs it with an atomic
// increment in the store.
// This is a PURE function.
func Check(used, limit, needed int64) CheckResult {
	available := limit - used
	if available < 0 {
		available = 0
	}
	return CheckResult{
		OK:        needed <= available,
		Used:      used,
		Available: available,
		Needed:    needed,
		Limit:     limit,
	}
}

// PeriodStart truncates t to the first of its month in UTC.
// This is a PURE function.
func PeriodStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the exclusive end of the period containing t.
// This is a PURE function.
func PeriodEnd(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, 0)
}

// ApplyRefund returns the used counter after refunding `amount`,
// floored at zero.
// This is a PURE function.
func ApplyRefund(used, amount int64) int64 {
	used -= amount
	if used < 0 {
		used = 0
	}
	return used
}
