package provider

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/logging"
)

// RetryPolicy is the single retry configuration shared by every provider
// call site. Retries apply only to network-class failures: timeouts,
// 5xx responses, and rate limits.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff schedule.
	MaxDelay time.Duration
}

// DefaultRetryPolicy mirrors the provider's published rate-limit guidance.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: 2.0,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
	}
}

// Delay returns the backoff delay before the given attempt (1-based; the
// first attempt has no delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.InitialDelay
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn under the policy. Non-retryable errors surface immediately;
// retryable errors are retried with backoff until attempts are exhausted,
// at which point the last error is returned. A RetryAfterError's delay
// overrides the backoff schedule, honoring the provider's Retry-After.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.wait(attempt, lastErr); delay > 0 {
			logging.Ctx(ctx).Debug().
				Str("operation", operation).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying after backoff")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.ErrCanceled
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}

	logging.Ctx(ctx).Warn().
		Str("operation", operation).
		Int("attempts", attempts).
		Err(lastErr).
		Msg("All retries exhausted")
	return lastErr
}

// wait computes the delay before an attempt, preferring the provider's
// Retry-After over the backoff schedule.
func (p RetryPolicy) wait(attempt int, lastErr error) time.Duration {
	if attempt <= 1 {
		return 0
	}
	var ra *RetryAfterError
	if stderrors.As(lastErr, &ra) && ra.After > 0 {
		return ra.After
	}
	return p.Delay(attempt)
}

// Retryable reports whether an error is a network-class failure worth
// retrying.
func Retryable(err error) bool {
	return errors.IsProviderUnavailable(err) ||
		errors.IsRateLimited(err) ||
		errors.IsTimeout(err)
}

// RetryAfterError carries a provider-specified retry delay, typically from
// a 429 Retry-After header.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

// Error implements the error interface
func (e *RetryAfterError) Error() string {
	return e.Err.Error()
}

// Unwrap implements errors.Unwrap
func (e *RetryAfterError) Unwrap() error {
	return e.Err
}
