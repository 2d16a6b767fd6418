package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	cause := errors.New("bad request")
	attempts := 0

	err := Retry(context.Background(), func() error {
		attempts++
		return Permanent(cause)
	})

	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, attempts)
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	attempts := 0
	started := time.Now()

	err := Retry(context.Background(), func() error {
		attempts++
		if attempts == 1 {
			return RetryAfter(2 * time.Second)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	// the default first delay is about a second; the server-directed two
	// seconds must win
	assert.GreaterOrEqual(t, time.Since(started), 2*time.Second)
}

func TestRetry_ContextCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Retry(ctx, func() error {
		return RetryAfter(time.Minute)
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
