package util

import (
	"context"
	"errors"
	"time"
)

// RetryOptions controls how often and how patiently a call is retried.
// Delay doubles after every failed attempt, capped at MaxDelay.
type RetryOptions struct {
	MaxTries int
	Delay    time.Duration
	MaxDelay time.Duration
}

// RetryWithContext calls fn until it returns a nil error, MaxTries is reached
// or ctx is done. If MaxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, opts RetryOptions, fn func(context.Context) (T, error)) (T, error) {
	if opts.MaxTries <= 0 {
		opts.MaxTries = 1
	}
	var lastErr error
	var zero T
	delay := opts.Delay
	for i := 0; i < opts.MaxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err

		if i == opts.MaxTries-1 || delay <= 0 {
			continue
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return zero, lastErr
}

// RetryErrWithContext is RetryWithContext for calls without a result.
func RetryErrWithContext(ctx context.Context, opts RetryOptions, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
