package ratelimit_test

import (
	"testing"
	"time"

	"github.com/artpar/fetchvault/domain/ratelimit"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestCheck_AllowsWithinLimit(t *testing.T) {
	state := ratelimit.WindowState{
		Bucket: ratelimit.BucketFor(baseTime),
		Count:  5,
	}

	result, newState := ratelimit.Check(state, 10, baseTime)

	if !result.Allowed {
		t.Error("expected request to be allowed")
	}
	if result.Remaining != 4 { // 10 - 6 = 4
		t.Errorf("Remaining = %d, want 4", result.Remaining)
	}
	if newState.Count != 6 {
		t.Errorf("Count = %d, want 6", newState.Count)
	}
}

func TestCheck_DeniesOverLimit(t *testing.T) {
	state := ratelimit.WindowState{
		Bucket: ratelimit.BucketFor(baseTime),
		Count:  10,
	}

	result, newState := ratelimit.Check(state, 10, baseTime)

	if result.Allowed {
		t.Error("expected request to be denied")
	}
	if result.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("Reason = %q, want %q", result.Reason, ratelimit.ReasonLimitExceeded)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", result.RetryAfter)
	}
	// Denied attempts still consume window capacity.
	if newState.Count != 11 {
		t.Errorf("Count = %d, want 11", newState.Count)
	}
}

func TestCheck_NewBucketResetsCounter(t *testing.T) {
	state := ratelimit.WindowState{
		Bucket: ratelimit.BucketFor(baseTime),
		Count:  10,
	}

	later := baseTime.Add(time.Minute)
	result, newState := ratelimit.Check(state, 10, later)

	if !result.Allowed {
		t.Error("expected fresh bucket to allow")
	}
	if newState.Bucket != ratelimit.BucketFor(later) {
		t.Errorf("Bucket = %d, want %d", newState.Bucket, ratelimit.BucketFor(later))
	}
	if newState.Count != 1 {
		t.Errorf("Count = %d, want 1", newState.Count)
	}
}

// A burst that straddles a bucket boundary can see up to 2x the limit
// in a single wall-clock minute. That is part of the contract.
func TestCheck_BoundaryBurstReachesDoubleLimit(t *testing.T) {
	limit := 5
	boundary := baseTime.Truncate(time.Minute)

	state := ratelimit.WindowState{}
	allowed := 0

	before := boundary.Add(-time.Second)
	for i := 0; i < limit; i++ {
		var result ratelimit.CheckResult
		result, state = ratelimit.Check(state, limit, before)
		if result.Allowed {
			allowed++
		}
	}

	after := boundary.Add(time.Second)
	for i := 0; i < limit; i++ {
		var result ratelimit.CheckResult
		result, state = ratelimit.Check(state, limit, after)
		if result.Allowed {
			allowed++
		}
	}

	if allowed != 2*limit {
		t.Errorf("allowed %d across boundary, want %d", allowed, 2*limit)
	}
}

func TestBucketEnd(t *testing.T) {
	bucket := ratelimit.BucketFor(baseTime)
	end := ratelimit.BucketEnd(bucket)

	if !end.After(baseTime) {
		t.Errorf("BucketEnd %v not after %v", end, baseTime)
	}
	if end.Sub(baseTime) > time.Minute {
		t.Errorf("BucketEnd %v more than a minute away", end)
	}
	if ratelimit.BucketFor(end) != bucket+1 {
		t.Error("BucketEnd should be the first instant of the next bucket")
	}
}

func TestRecordOutcome_TripsOnSustainedErrors(t *testing.T) {
	state := ratelimit.AbuseState{}

	// 19 errors are not enough requests to trip.
	for i := 0; i < ratelimit.AbuseMinRequests-1; i++ {
		state = ratelimit.RecordOutcome(state, 429, baseTime)
	}
	if ratelimit.Blocked(state, baseTime) {
		t.Fatal("blocked before minimum request count")
	}

	state = ratelimit.RecordOutcome(state, 429, baseTime)
	if !ratelimit.Blocked(state, baseTime) {
		t.Fatal("expected block after sustained 4xx traffic")
	}

	wantUntil := baseTime.Add(ratelimit.AbuseBlockDuration)
	if !state.BlockedUntil.Equal(wantUntil) {
		t.Errorf("BlockedUntil = %v, want %v", state.BlockedUntil, wantUntil)
	}
}

func TestRecordOutcome_SuccessesKeepRatioBelowThreshold(t *testing.T) {
	state := ratelimit.AbuseState{}

	// Half errors, half successes: ratio is exactly 0.5, not above it.
	for i := 0; i < 20; i++ {
		code := 200
		if i%2 == 0 {
			code = 404
		}
		state = ratelimit.RecordOutcome(state, code, baseTime)
	}

	if ratelimit.Blocked(state, baseTime) {
		t.Error("ratio at threshold should not trip the block")
	}
}

func TestRecordOutcome_ServerErrorsDoNotCount(t *testing.T) {
	state := ratelimit.AbuseState{}
	for i := 0; i < 30; i++ {
		state = ratelimit.RecordOutcome(state, 502, baseTime)
	}
	if ratelimit.Blocked(state, baseTime) {
		t.Error("5xx responses must not trip the abuse block")
	}
}

func TestRecordOutcome_WindowRollsOver(t *testing.T) {
	state := ratelimit.AbuseState{}
	for i := 0; i < 19; i++ {
		state = ratelimit.RecordOutcome(state, 400, baseTime)
	}

	// Window elapses; counters start over.
	later := baseTime.Add(ratelimit.AbuseWindow)
	state = ratelimit.RecordOutcome(state, 400, later)

	if state.Total != 1 {
		t.Errorf("Total = %d, want 1 after window rollover", state.Total)
	}
	if ratelimit.Blocked(state, later) {
		t.Error("should not be blocked after rollover")
	}
}

func TestBlocked_ClearsWhenExpired(t *testing.T) {
	state := ratelimit.AbuseState{BlockedUntil: baseTime.Add(ratelimit.AbuseBlockDuration)}

	if !ratelimit.Blocked(state, baseTime) {
		t.Error("expected active block")
	}
	if ratelimit.Blocked(state, state.BlockedUntil) {
		t.Error("block must clear at expiry")
	}
}
