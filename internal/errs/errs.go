// Package errs defines the miner's error taxonomy. Every failure that crosses
// a package boundary is one of these kinds, so callers can decide between
// retrying, surfacing, reconnecting and pausing without string matching.
package errs

import (
	"errors"
	"fmt"
)

// ErrExitRequest propagates a user-requested shutdown through cancellation
// paths. It maps to exit code 0.
var ErrExitRequest = errors.New("exit requested")

// ErrWebsocketClosed signals that a pub-sub connection was closed and should
// be reconnected. It never escalates past the connection's own loop.
var ErrWebsocketClosed = errors.New("websocket closed")

// ErrCaptchaRequired signals that Twitch demanded a captcha during login.
// Mining pauses until the user intervenes.
var ErrCaptchaRequired = errors.New("captcha required")

// MinerError is an internal invariant violation. Always fatal.
type MinerError struct {
	Msg string
	Err error
}

func (e *MinerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("miner error: %s: %v", e.Msg, e.Err)
	}
	return "miner error: " + e.Msg
}

func (e *MinerError) Unwrap() error { return e.Err }

// Minerf creates a MinerError with a formatted message.
func Minerf(format string, args ...any) *MinerError {
	return &MinerError{Msg: fmt.Sprintf(format, args...)}
}

// RequestError is a transient network failure or an HTTP 5xx/429 response.
// Retryable with backoff.
type RequestError struct {
	Status int
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request failed: %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("request failed: %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RequestInvalid is an HTTP 4xx response other than 429. Not retryable.
type RequestInvalid struct {
	Status int
	URL    string
}

func (e *RequestInvalid) Error() string {
	return fmt.Sprintf("invalid request: %s: status %d", e.URL, e.Status)
}

// GQLError is a platform-level error payload in an otherwise successful GQL
// response. Retried only when the platform marks it as a service error.
type GQLError struct {
	Operation string
	Messages  []string
}

func (e *GQLError) Error() string {
	return fmt.Sprintf("gql error: %s: %v", e.Operation, e.Messages)
}

// ServiceError reports whether the payload indicates a transient platform
// fault worth one retry.
func (e *GQLError) ServiceError() bool {
	for _, m := range e.Messages {
		switch m {
		case "service error", "service unavailable", "service timeout", "PersistedQueryNotFound":
			return true
		}
	}
	return false
}

// LoginError is an authentication failure requiring user intervention.
// It maps to exit code 2 when it terminates the process.
type LoginError struct {
	Msg string
	Err error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Msg, e.Err)
	}
	return "login failed: " + e.Msg
}

func (e *LoginError) Unwrap() error { return e.Err }

// Retryable reports whether the error may resolve on its own given backoff.
func Retryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	var gqlErr *GQLError
	if errors.As(err, &gqlErr) {
		return gqlErr.ServiceError()
	}
	return errors.Is(err, ErrWebsocketClosed)
}
