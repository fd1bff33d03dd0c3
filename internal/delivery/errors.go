package delivery

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStopped = errors.New("delivery queue stopped")
)

// NoRetry marks an error as non-retryable.
//
// Adapters wrap permanent failures (invalid credentials, malformed webhook
// target, unsupported media) with NoRetry so the queue drops the task
// immediately without consuming retry budget.
//
// Example:
//
//	return delivery.NoRetry(fmt.Errorf("webhook rejected: %s", msg))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// RetryAfter provides a suggested delay before retrying.
//
// This is useful when the downstream API returns a Retry-After value
// (e.g., HTTP 429). The queue respects the hint, bounded by its configured
// maximum delay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }
