package app

import (
	"errors"
	"fmt"

	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/domain/ratelimit"
)

// Validation failures on the submission payload.
var (
	ErrNoItems         = errors.New("batch has no items")
	ErrMissingURL      = errors.New("item is missing a url")
	ErrInvalidIdemKey  = errors.New("idempotency key must be a canonical UUID")
	ErrInvalidCallback = errors.New("callback url must be http or https")
)

// TooManyItemsError reports a batch over the tier's item cap.
type TooManyItemsError struct {
	Count int
	Max   int
}

func (e *TooManyItemsError) Error() string {
	return fmt.Sprintf("batch has %d items, tier allows %d", e.Count, e.Max)
}

// RateLimitError reports an admission rejection by the rate limiter or
// the abuse detector. Result carries the retry hints for the response.
type RateLimitError struct {
	Result ratelimit.CheckResult
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded: " + e.Result.Reason
}

// InsufficientCreditsError reports a credit reservation failure.
// Result carries the usage numbers for the response body.
type InsufficientCreditsError struct {
	Result credit.CheckResult
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d",
		e.Result.Needed, e.Result.Available)
}
