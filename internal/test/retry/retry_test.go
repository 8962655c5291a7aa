package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taletoprint-backend/internal/retry"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func() error {
		calls++
		return nil
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return retry.Transient(errors.New("rate limited"), 0)
		}
		return nil
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	boom := errors.New("invalid api key")
	calls := 0
	err := retry.Do(context.Background(), func() error {
		calls++
		return boom
	}, 3)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestDo_ExhaustionReportsAttempts(t *testing.T) {
	underlying := errors.New("still rate limited")
	calls := 0
	err := retry.Do(context.Background(), func() error {
		calls++
		return retry.Transient(underlying, 0)
	}, 2)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.ErrorIs(t, err, underlying)
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry.Do(ctx, func() error {
		calls++
		return retry.Transient(errors.New("rate limited"), 0)
	}, 3)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestTransient_PreservesUnderlyingError(t *testing.T) {
	underlying := errors.New("connection reset")
	wrapped := retry.Transient(underlying, 5*time.Second)

	assert.ErrorIs(t, wrapped, underlying)
	assert.Equal(t, "connection reset", wrapped.Error())

	var transient *retry.TransientError
	require.ErrorAs(t, wrapped, &transient)
	assert.Equal(t, 5*time.Second, transient.RetryAfter)
}
