// AngelaMos | 2026
// retry.go

package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/carterperez-dev/legalquota/internal/core"
)

type retryPolicy struct {
	initial    time.Duration
	maxElapsed time.Duration
	maxRetries uint64
}

var defaultRetry = retryPolicy{
	initial:    200 * time.Millisecond,
	maxElapsed: 30 * time.Second,
	maxRetries: 5,
}

// withRetry repeats op while the store answers with a timeout. A timeout
// leaves the outcome unknown, so only operations that are safe to repeat
// (absolute writes or ones carrying an operation token) go through here.
func withRetry(ctx context.Context, p retryPolicy, op func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initial
	eb.MaxElapsedTime = p.maxElapsed

	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if core.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}
