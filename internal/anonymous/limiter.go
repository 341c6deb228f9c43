// AngelaMos | 2026
// limiter.go

package anonymous

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/metrics"
)

const keyPrefix = "anon:queries:"

var ErrStorageUnavailable = errors.New("anonymous usage store unavailable")

// Limiter is a soft, lifetime budget for unauthenticated visitors keyed by a
// client fingerprint. It only adds friction: counters never expire and never
// migrate to an account, and any storage failure fails open.
type Limiter struct {
	rdb     redis.Cmdable
	hasher  *core.FingerprintHasher
	budget  int
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	degraded sync.Map
}

type Config struct {
	Budget  int
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewLimiter(
	rdb redis.Cmdable,
	hasher *core.FingerprintHasher,
	cfg Config,
) *Limiter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		rdb:     rdb,
		hasher:  hasher,
		budget:  cfg.Budget,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

func (l *Limiter) Budget() int {
	return l.budget
}

// Check reports whether the visitor may run another query and how many they
// have used. It never writes.
func (l *Limiter) Check(ctx context.Context, fingerprint string) (bool, int) {
	key := l.key(fingerprint)

	used, err := core.BoundedValue(ctx, l.timeout, "anonymous check",
		func(ctx context.Context) (int, error) {
			n, err := l.rdb.Get(ctx, key).Int()
			if errors.Is(err, redis.Nil) {
				return 0, nil
			}
			return n, err
		})
	if err != nil {
		l.degrade(key, "check", err)
		return true, 0
	}

	l.clearDegraded(key)
	return used < l.budget, used
}

// Increment charges one query. ok is false when the charge could not be
// recorded; the caller proceeds anyway.
func (l *Limiter) Increment(ctx context.Context, fingerprint string) (int, bool) {
	key := l.key(fingerprint)

	used, err := core.BoundedValue(ctx, l.timeout, "anonymous increment",
		func(ctx context.Context) (int64, error) {
			return l.rdb.Incr(ctx, key).Result()
		})
	if err != nil {
		l.degrade(key, "increment", err)
		return 0, false
	}

	l.clearDegraded(key)
	return int(used), true
}

// Clear drops a visitor's counter.
func (l *Limiter) Clear(ctx context.Context, fingerprint string) error {
	key := l.key(fingerprint)

	err := core.Bounded(ctx, l.timeout, "anonymous clear",
		func(ctx context.Context) error {
			return l.rdb.Del(ctx, key).Err()
		})
	if err != nil {
		return fmt.Errorf("clear anonymous usage: %w: %w", ErrStorageUnavailable, err)
	}

	l.degraded.Delete(key)
	return nil
}

func (l *Limiter) key(fingerprint string) string {
	return keyPrefix + l.hasher.Hash(fingerprint)
}

// degrade logs the first failure of a session; later failures only count.
func (l *Limiter) degrade(key, op string, err error) {
	l.metrics.AnonymousDegraded(op)

	if _, seen := l.degraded.LoadOrStore(key, struct{}{}); seen {
		return
	}

	l.logger.Warn("anonymous limiter degraded, failing open",
		"op", op,
		"key", key,
		"error", fmt.Errorf("%w: %w", ErrStorageUnavailable, err),
	)
}

func (l *Limiter) clearDegraded(key string) {
	l.degraded.Delete(key)
}
