// Package backoff centralizes retry delay policy and request rate limiting.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	expbackoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
)

// MaxRetries bounds every retried operation in the miner.
const MaxRetries = 5

// New returns the miner's standard exponential policy: delays grow as
// base*2^attempt up to the cap, with relative jitter applied to each delay.
func New() *expbackoff.ExponentialBackOff {
	b := expbackoff.NewExponentialBackOff()
	b.InitialInterval = constants.BackoffBase
	b.MaxInterval = constants.BackoffCap
	b.Multiplier = 2
	b.RandomizationFactor = constants.BackoffJitter
	b.MaxElapsedTime = 0
	return b
}

// Retry runs op under the standard policy with at most MaxRetries retries,
// stopping early when the context is cancelled. Wrap a permanent failure with
// Permanent to stop retrying; an error carrying a RetryAfterError stretches
// the next delay to the server-directed minimum.
func Retry(ctx context.Context, op func() error) error {
	policy := New()
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		var permanent *expbackoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		if attempt >= MaxRetries {
			return err
		}

		wait := policy.NextBackOff()
		var after *RetryAfterError
		if errors.As(err, &after) && after.Duration > wait {
			wait = after.Duration
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return expbackoff.Permanent(err)
}

// RetryAfterError carries a server-directed minimum delay, typically parsed
// from a Retry-After header.
type RetryAfterError struct {
	Duration time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s", e.Duration)
}

// RetryAfter wraps a server-directed delay for Retry to honor.
func RetryAfter(d time.Duration) error {
	return &RetryAfterError{Duration: d}
}

// Reconnector tracks reconnect delays for a long-lived connection. Unlike
// Retry it never gives up; Reset is called after a successful connect.
type Reconnector struct {
	policy *expbackoff.ExponentialBackOff
}

// NewReconnector returns a fresh reconnect delay tracker.
func NewReconnector() *Reconnector {
	return &Reconnector{policy: New()}
}

// Wait sleeps for the next delay in the sequence. Returns the context error
// if cancelled mid-sleep.
func (r *Reconnector) Wait(ctx context.Context) error {
	t := time.NewTimer(r.policy.NextBackOff())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset restarts the delay sequence after a successful connection.
func (r *Reconnector) Reset() {
	r.policy.Reset()
}

// NewGQLLimiter returns the token bucket shared by all GraphQL requests.
func NewGQLLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(constants.GQLRateLimit), constants.GQLRateBurst)
}

// NewHTTPLimiter returns the token bucket shared by plain HTTP requests.
func NewHTTPLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(constants.HTTPRateLimit), constants.HTTPRateBurst)
}
