package ratelimit

import "time"

// Abuse detector thresholds. The breaker needs sustained, mostly-failing
// traffic to trip, and clears on its own when the block elapses.
const (
	AbuseWindow        = 5 * time.Minute
	AbuseMinRequests   = 20
	AbuseErrorRatio    = 0.5
	AbuseBlockDuration = 300 * time.Second
)

// AbuseState tracks a tenant's rolling request outcomes (value type).
type AbuseState struct {
	WindowStart  time.Time // start of the current observation window
	Total        int       // requests observed in the window
	ClientErrors int       // 4xx responses in the window
	BlockedUntil time.Time // zero when not blocked
}

// Blocked reports whether the tenant is under an active abuse block.
// This is a PURE function.
func Blocked(state AbuseState, now time.Time) bool {
	return !state.BlockedUntil.IsZero() && now.Before(state.BlockedUntil)
}

// RecordOutcome folds one completed HTTP exchange into the state and
// trips the block when the window shows sustained client errors.
// This is a PURE function.
func RecordOutcome(state AbuseState, statusCode int, now time.Time) AbuseState {
	if state.WindowStart.IsZero() || now.Sub(state.WindowStart) >= AbuseWindow {
		state.WindowStart = now
		state.Total = 0
		state.ClientErrors = 0
	}

	state.Total++
	if statusCode >= 400 && statusCode < 500 {
		state.ClientErrors++
	}

	if state.Total >= AbuseMinRequests &&
		float64(state.ClientErrors)/float64(state.Total) > AbuseErrorRatio {
		state.BlockedUntil = now.Add(AbuseBlockDuration)
	}

	return state
}
