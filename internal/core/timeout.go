// AngelaMos | 2026
// timeout.go

package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Bounded runs fn against a context that expires after d. A deadline hit is
// reported as ErrStorageTimeout: the caller must treat the outcome as unknown
// and retry, never as success.
func Bounded(
	ctx context.Context,
	d time.Duration,
	op string,
	fn func(ctx context.Context) error,
) error {
	if d <= 0 {
		return fn(ctx)
	}

	boundedCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(boundedCtx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(boundedCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrStorageTimeout)
	}

	return err
}

// BoundedValue is Bounded for calls that return a value.
func BoundedValue[T any](
	ctx context.Context,
	d time.Duration,
	op string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	err := Bounded(ctx, d, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsRetryable reports whether err is an infrastructure failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageTimeout)
}
