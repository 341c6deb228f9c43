// AngelaMos | 2026
// stats.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/outbox"
)

const statsBudget = 3 * time.Second

const (
	SectionRecordStore    = "record_store"
	SectionAnonymousStore = "anonymous_store"
	SectionOutbox         = "outbox"
	SectionRuntime        = "runtime"
)

type OutboxCounter interface {
	CountByStatus(ctx context.Context) (map[outbox.Status]int, error)
}

// StatsReport is the operator's view of the stores behind the gate. A
// section is nil when its probe is not wired.
type StatsReport struct {
	RecordStore    *StoreStatus          `json:"record_store,omitempty"`
	AnonymousStore *StoreStatus          `json:"anonymous_store,omitempty"`
	Outbox         map[outbox.Status]int `json:"outbox,omitempty"`
	Runtime        *RuntimeStats         `json:"runtime,omitempty"`
}

type StoreStatus struct {
	Reachable bool   `json:"reachable"`
	Latency   string `json:"latency"`
	Pool      any    `json:"pool,omitempty"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	HeapAlloc    uint64 `json:"heap_alloc_bytes"`
	Sys          uint64 `json:"sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

type statsCollector struct {
	dbPing     func(ctx context.Context) error
	dbStats    func() sql.DBStats
	redisPing  func(ctx context.Context) error
	redisStats func() *redis.PoolStats
	outbox     OutboxCounter
}

func newStatsCollector(cfg HandlerConfig) *statsCollector {
	return &statsCollector{
		dbPing:     cfg.DBPing,
		dbStats:    cfg.DBStats,
		redisPing:  cfg.RedisPing,
		redisStats: cfg.RedisStats,
		outbox:     cfg.Outbox,
	}
}

// collect probes the requested sections concurrently. An empty selection
// means all of them.
func (c *statsCollector) collect(ctx context.Context, sections ...string) StatsReport {
	want := func(name string) bool {
		return len(sections) == 0 || slices.Contains(sections, name)
	}

	ctx, cancel := context.WithTimeout(ctx, statsBudget)
	defer cancel()

	var report StatsReport
	var g errgroup.Group

	if want(SectionRecordStore) && c.dbPing != nil {
		g.Go(func() error {
			report.RecordStore = probeStore(ctx, c.dbPing)
			if c.dbStats != nil {
				s := c.dbStats()
				report.RecordStore.Pool = map[string]any{
					"open":          s.OpenConnections,
					"in_use":        s.InUse,
					"idle":          s.Idle,
					"max_open":      s.MaxOpenConnections,
					"wait_count":    s.WaitCount,
					"wait_duration": s.WaitDuration.String(),
				}
			}
			return nil
		})
	}

	if want(SectionAnonymousStore) && c.redisPing != nil {
		g.Go(func() error {
			report.AnonymousStore = probeStore(ctx, c.redisPing)
			if c.redisStats != nil {
				s := c.redisStats()
				report.AnonymousStore.Pool = map[string]uint32{
					"hits":        s.Hits,
					"misses":      s.Misses,
					"timeouts":    s.Timeouts,
					"total_conns": s.TotalConns,
					"idle_conns":  s.IdleConns,
				}
			}
			return nil
		})
	}

	if want(SectionOutbox) && c.outbox != nil {
		g.Go(func() error {
			if counts, err := c.outbox.CountByStatus(ctx); err == nil {
				report.Outbox = counts
			}
			return nil
		})
	}

	//nolint:errcheck // probes report through the struct
	_ = g.Wait()

	if want(SectionRuntime) {
		report.Runtime = readRuntime()
	}
	return report
}

func probeStore(ctx context.Context, ping func(context.Context) error) *StoreStatus {
	start := time.Now()
	err := ping(ctx)
	return &StoreStatus{
		Reachable: err == nil,
		Latency:   time.Since(start).Round(time.Microsecond).String(),
	}
}

func readRuntime() *RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		HeapAlloc:    mem.HeapAlloc,
		Sys:          mem.Sys,
		NumGC:        mem.NumGC,
	}
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.stats.collect(r.Context()))
}

func (h *Handler) GetStatsSection(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	switch section {
	case SectionRecordStore, SectionAnonymousStore, SectionOutbox, SectionRuntime:
		core.OK(w, h.stats.collect(r.Context(), section))
	default:
		core.NotFound(w, "stats section")
	}
}
