// Package retry is the single retry policy applied to outbound calls:
// bounded attempts, exponential delay, and provider-supplied Retry-After
// honored when present.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TransientError marks an error as worth retrying. Wrap provider
// rate-limit and timeout errors in it; everything else fails immediately.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so Do will retry it, with an optional provider hint
// for how long to wait first.
func Transient(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

var backoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// Do runs fn up to maxAttempts times. Non-transient errors are returned
// as-is on the first occurrence; transient errors are retried after an
// exponential delay, or the provider's Retry-After when it is longer.
func Do(ctx context.Context, fn func() error, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}

		delay := backoffs[len(backoffs)-1]
		if attempt < len(backoffs) {
			delay = backoffs[attempt]
		}
		if transient.RetryAfter > delay {
			delay = transient.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
