// Package ratelimit provides pure rate limiting and abuse detection
// algorithms. All functions are deterministic - same input always
// produces same output. State persistence and atomicity belong to the
// stores implementing ports.RateLimitStore.
package ratelimit

import "time"

// WindowState represents one tenant's fixed-window counter (value type).
type WindowState struct {
	Bucket int64 // unix minute this counter belongs to
	Count  int   // requests seen in the bucket, including rejected ones
}

// CheckResult represents the outcome of a rate limit check (value type).
type CheckResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time     // when the current bucket ends
	RetryAfter time.Duration // non-zero only when denied
	Reason     string        // if not allowed, why
}

// Reasons for denial.
const (
	ReasonLimitExceeded = "rate_limit_exceeded"
	ReasonBlocked       = "blocked"
)

// BucketFor returns the fixed window bucket for a wall-clock instant:
// floor(unix seconds / 60). Buckets are UTC-aligned by construction.
// Note the documented contract: a burst can span a bucket boundary and
// reach 2x the limit across it. That is the behavior callers rely on,
// not something to correct here.
// This is a PURE function.
func BucketFor(now time.Time) int64 {
	return now.Unix() / 60
}

// BucketEnd returns the instant the given bucket rolls over.
// This is a PURE function.
func BucketEnd(bucket int64) time.Time {
	return time.Unix((bucket+1)*60, 0).UTC()
}

// Check performs a fixed-window rate limit check.
//
// The increment is the consumption: the counter moves even when the
// answer is "denied", and even when the request later fails admission
// for other reasons (fail-closed). Callers must persist newState under
// the same lock that produced it.
// This is a PURE function.
func Check(state WindowState, limit int, now time.Time) (CheckResult, WindowState) {
	bucket := BucketFor(now)
	if state.Bucket != bucket {
		state = WindowState{Bucket: bucket}
	}

	state.Count++

	result := CheckResult{
		Limit:   limit,
		ResetAt: BucketEnd(bucket),
	}

	if state.Count <= limit {
		result.Allowed = true
		result.Remaining = limit - state.Count
		return result, state
	}

	result.Reason = ReasonLimitExceeded
	result.RetryAfter = result.ResetAt.Sub(now)
	if result.RetryAfter < 0 {
		result.RetryAfter = 0
	}
	return result, state
}
