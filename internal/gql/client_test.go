package gql

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/backoff"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
)

func TestParseRetryAfter_Seconds(t *testing.T) {
	err := parseRetryAfter("3")
	require.Error(t, err)

	var after *backoff.RetryAfterError
	require.True(t, errors.As(err, &after))
	assert.Equal(t, 3*time.Second, after.Duration)
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	stamp := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	err := parseRetryAfter(stamp)
	require.Error(t, err)

	var after *backoff.RetryAfterError
	require.True(t, errors.As(err, &after))
	assert.Greater(t, after.Duration, time.Duration(0))
	assert.LessOrEqual(t, after.Duration, 10*time.Second)
}

func TestParseRetryAfter_Invalid(t *testing.T) {
	assert.NoError(t, parseRetryAfter(""))
	assert.NoError(t, parseRetryAfter("soon"))
	// a date already in the past carries no usable delay
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.NoError(t, parseRetryAfter(past))
}

func TestRateLimitedError_CarriesRetryAfter(t *testing.T) {
	// the shape doHTTPRequest produces for a 429 with a Retry-After header
	err := &errs.RequestError{
		Status: http.StatusTooManyRequests,
		URL:    "https://gql.example",
		Err:    parseRetryAfter("2"),
	}

	assert.True(t, errs.Retryable(err))

	var after *backoff.RetryAfterError
	require.True(t, errors.As(err, &after))
	assert.Equal(t, 2*time.Second, after.Duration)
}
