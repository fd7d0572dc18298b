package crawler

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds one step. Delays are fixed: the usual failure is a
// receiver that is not ready yet, which clears within a second or two.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// IsTransient decides which errors are retried. Defaults to IsTransient.
	IsTransient func(error) bool
	// OnRetry runs after a transient failure when another attempt follows.
	OnRetry func(ctx context.Context, attempt int, err error)
}

// Retry calls action until it succeeds, fails with a non-transient error, or
// uses MaxAttempts. An exhausted budget returns an error wrapping both
// ErrRetriesExhausted and the last failure.
func Retry[T any](ctx context.Context, p RetryPolicy, action func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	transient := p.IsTransient
	if transient == nil {
		transient = IsTransient
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := action(ctx)
		if err == nil {
			return v, nil
		}
		if !transient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(ctx, attempt, err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
