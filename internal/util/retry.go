package util

import (
	"context"
	"errors"
	"time"
)

// Backoff returns the pause before attempt i+1. A nil Backoff retries
// immediately.
type Backoff func(attempt int) time.Duration

// Exponential doubles base after every failed attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt > 30 {
			return max
		}
		d := base << attempt
		if d <= 0 || d > max {
			return max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryErrWithContext calls fn up to maxTries times until it returns nil.
// If maxTries <= 0, it defaults to 1.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	_, err := RetryWithBackoff(ctx, maxTries, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	return RetryWithBackoff(ctx, maxTries, nil, fn)
}

// RetryWithBackoff is RetryWithContext with a pause between attempts.
// Errors caused by the caller's context are returned at once.
func RetryWithBackoff[T any](
	ctx context.Context,
	maxTries int,
	backoff Backoff,
	fn func(context.Context) (T, error),
) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if backoff != nil && i < maxTries-1 {
			if err := sleep(ctx, backoff(i)); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}
