// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/legalquota/internal/core"
)

// RateLimitConfig bounds request bursts per key. It protects the transport
// only; billable usage is counted by the quota ledger and the anonymous
// limiter, never here.
type RateLimitConfig struct {
	Limit   redis_rate.Limit
	KeyFunc func(*http.Request) string
	Skip    func(*http.Request) bool
	Logger  *slog.Logger
}

// RateLimiter shares buckets across instances through Redis. While Redis is
// unreachable each instance falls back to its own in-memory buckets.
type RateLimiter struct {
	shared   *redis_rate.Limiter
	local    *localLimiter
	cfg      RateLimitConfig
	degraded atomic.Bool
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RateLimiter{
		shared: redis_rate.NewLimiter(rdb),
		local:  newLocalLimiter(),
		cfg:    cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		res := rl.allow(r.Context(), rl.cfg.KeyFunc(r))
		writeLimitHeaders(w, res)

		if res.Allowed == 0 {
			retryAfter := max(int(res.RetryAfter.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			core.JSONError(w, core.NewAppError(
				"RATE_LIMITED",
				fmt.Sprintf("too many requests, retry after %d seconds", retryAfter),
				http.StatusTooManyRequests,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) *redis_rate.Result {
	res, err := rl.shared.Allow(ctx, key, rl.cfg.Limit)
	if err == nil {
		if rl.degraded.CompareAndSwap(true, false) {
			rl.cfg.Logger.Info("rate limiter back on shared buckets")
		}
		return res
	}

	if rl.degraded.CompareAndSwap(false, true) {
		rl.cfg.Logger.Warn("rate limiter using local buckets", "error", err)
	}
	return rl.local.allow(key, rl.cfg.Limit, time.Now())
}

// KeyByIP keys on the nearest proxy-reported client address.
func KeyByIP(r *http.Request) string {
	return "ratelimit:ip:" + clientIP(r)
}

// KeyByAccount limits authenticated callers per account and everyone else
// per IP. Client fingerprints are never used as keys.
func KeyByAccount(r *http.Request) string {
	if accountID := GetAccountID(r.Context()); accountID != "" {
		return "ratelimit:account:" + accountID
	}
	return KeyByIP(r)
}

// SkipPaths exempts probe and scrape endpoints.
func SkipPaths(paths ...string) func(*http.Request) bool {
	skip := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		skip[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := skip[r.URL.Path]
		return ok
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return strings.TrimSpace(hops[len(hops)-1])
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeLimitHeaders(w http.ResponseWriter, res *redis_rate.Result) {
	h := w.Header()
	limit := res.Limit

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", res.Remaining, int(res.ResetAfter.Seconds())))
}

// Every allows rate requests per window with the given burst.
func Every(window time.Duration, rate, burst int) redis_rate.Limit {
	if window <= 0 {
		window = time.Minute
	}
	return redis_rate.Limit{Rate: rate, Burst: burst, Period: window}
}

const (
	localIdleTTL    = 10 * time.Minute
	localSweepEvery = time.Minute
)

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter holds per-key token buckets and drops idle ones during
// regular calls, so it needs no background goroutine.
type localLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

func newLocalLimiter() *localLimiter {
	return &localLimiter{buckets: make(map[string]*localBucket)}
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit, now time.Time) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSecond)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > localSweepEvery {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > localIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := &redis_rate.Result{
		Limit:      limit,
		RetryAfter: -1,
		ResetAfter: interval,
	}
	if b.limiter.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	res.Remaining = max(int(b.limiter.TokensAt(now)), 0)
	return res
}
