// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/legalquota/internal/config"
)

// Redis holds anonymous usage counters and HTTP rate-limit buckets. Neither
// is authoritative, so an unreachable Redis degrades the service instead of
// stopping it.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client without requiring the server to be up. Call
// Ping to learn whether it is reachable.
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = 5 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute
	// INCR is not idempotent: a retried command whose first reply was lost
	// would count one anonymous query twice.
	opts.MaxRetries = -1

	return &Redis{Client: redis.NewClient(opts)}, nil
}

func (r *Redis) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// Ping satisfies health.Checker.
func (r *Redis) Ping(ctx context.Context) error {
	return Bounded(ctx, probeTimeout, "ping redis", func(ctx context.Context) error {
		return r.Client.Ping(ctx).Err()
	})
}

func (r *Redis) PoolStats() *redis.PoolStats {
	return r.Client.PoolStats()
}
