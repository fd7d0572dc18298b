package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	var retried []int
	got, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 5,
		OnRetry: func(_ context.Context, attempt int, err error) {
			require.ErrorIs(t, err, ErrEndpointMissing)
			retried = append(retried, attempt)
		},
	}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", ErrEndpointMissing
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retried)
}

func TestRetryStopsOnNonTransientError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5}, func(context.Context) (int, error) {
		calls++
		return 0, ErrTabClosed
	})
	require.ErrorIs(t, err, ErrTabClosed)
	require.NotErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	retries := 0
	_, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 3,
		OnRetry:     func(context.Context, int, error) { retries++ },
	}, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, retries, "no retry hook after the final attempt")
}

func TestRetryCustomPredicate(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 4,
		IsTransient: func(err error) bool { return errors.Is(err, errNotReady) },
	}, func(context.Context) (int, error) {
		calls++
		return 0, ErrEndpointMissing
	})
	require.ErrorIs(t, err, ErrEndpointMissing)
	require.Equal(t, 1, calls)
}

func TestRetryAtLeastOneAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{}, func(context.Context) (int, error) {
		calls++
		return 0, errNotReady
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, 1, calls)
}

func TestRetryWaitsFixedDelay(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Delay: 20 * time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, errNotReady
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRetryHonorsCancellationDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0
	_, err := Retry(ctx, RetryPolicy{MaxAttempts: 10, Delay: time.Hour}, func(context.Context) (int, error) {
		calls++
		return 0, errNotReady
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	require.False(t, IsTransient(nil))
	require.True(t, IsTransient(ErrEndpointMissing))
	require.True(t, IsTransient(errNotReady))
	require.False(t, IsTransient(ErrTabClosed))
	require.False(t, IsTransient(context.Canceled))
}
