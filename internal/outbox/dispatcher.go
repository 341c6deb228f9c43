// AngelaMos | 2026
// dispatcher.go

package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/metrics"
)

// ErrUndeliverable marks a delivery error that retrying cannot fix.
var ErrUndeliverable = errors.New("undeliverable event")

const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 60 * time.Second
)

type Deliverer interface {
	Deliver(ctx context.Context, event Event) error
}

// Channel names a Deliverer for logs and metrics.
type Channel struct {
	Name      string
	Deliverer Deliverer
}

type DispatcherConfig struct {
	BatchSize    int
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	Timeout      time.Duration
	Lease        time.Duration
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

type Dispatcher struct {
	repo     Repository
	channels []Channel
	cfg      DispatcherConfig
	logger   *slog.Logger
	now      func() time.Time
}

type FlushResult struct {
	Claimed   int `json:"claimed"`
	Delivered int `json:"delivered"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

func NewDispatcher(repo Repository, cfg DispatcherConfig, channels ...Channel) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		repo:     repo,
		channels: channels,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run flushes on every poll interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started",
		"poll_interval", d.cfg.PollInterval,
		"workers", d.cfg.Workers,
		"channels", len(d.channels),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Flush(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox flush failed", "error", err)
			}
		}
	}
}

// Flush claims one batch of due events and delivers them concurrently. A
// failing channel never blocks the others, and a retry skips the channels
// that already accepted the event.
func (d *Dispatcher) Flush(ctx context.Context) (FlushResult, error) {
	events, err := core.BoundedValue(ctx, d.cfg.Timeout, "claim lifecycle events",
		func(ctx context.Context) ([]Event, error) {
			return d.repo.ClaimDue(ctx, d.now(), d.cfg.Lease, d.cfg.BatchSize)
		})
	if err != nil {
		return FlushResult{}, err
	}

	var (
		mu     sync.Mutex
		result = FlushResult{Claimed: len(events)}
		g      errgroup.Group
	)
	g.SetLimit(d.cfg.Workers)

	for _, event := range events {
		g.Go(func() error {
			status, err := d.process(ctx, event)

			mu.Lock()
			defer mu.Unlock()
			switch status {
			case StatusDelivered:
				result.Delivered++
			case StatusFailed:
				result.Failed++
			default:
				result.Retried++
			}
			return err
		})
	}

	return result, g.Wait()
}

func (d *Dispatcher) process(ctx context.Context, event Event) (Status, error) {
	var failures []error
	for _, ch := range d.channels {
		if event.DeliveredVia.Has(ch.Name) {
			continue
		}

		err := core.Bounded(ctx, d.cfg.Timeout, "deliver "+ch.Name,
			func(ctx context.Context) error {
				return ch.Deliverer.Deliver(ctx, event)
			})
		d.cfg.Metrics.OutboxDelivery(ch.Name, err)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", ch.Name, err))
			continue
		}

		if err := d.mark(ctx, "mark channel delivered", func(ctx context.Context) error {
			return d.repo.MarkChannelDelivered(ctx, event.ID, ch.Name)
		}); err != nil {
			d.logger.Warn("channel delivery not recorded, a retry may repeat it",
				"event_id", event.ID,
				"channel", ch.Name,
				"error", err,
			)
		}
	}

	if len(failures) == 0 {
		return StatusDelivered, d.mark(ctx, "mark event delivered", func(ctx context.Context) error {
			return d.repo.MarkDelivered(ctx, event.ID, d.now())
		})
	}

	cause := errors.Join(failures...)
	if errors.Is(cause, ErrUndeliverable) || event.Attempts >= d.cfg.MaxAttempts {
		d.logger.Error("lifecycle event failed permanently",
			"event_id", event.ID,
			"kind", event.Kind,
			"attempts", event.Attempts,
			"error", cause,
		)
		return StatusFailed, d.mark(ctx, "mark event failed", func(ctx context.Context) error {
			return d.repo.MarkFailed(ctx, event.ID, cause.Error())
		})
	}

	next := d.now().Add(RetryDelay(event.Attempts))
	d.logger.Warn("lifecycle event delivery failed, will retry",
		"event_id", event.ID,
		"kind", event.Kind,
		"attempts", event.Attempts,
		"next_attempt_at", next,
		"error", cause,
	)
	return StatusPending, d.mark(ctx, "mark event retry", func(ctx context.Context) error {
		return d.repo.MarkRetry(ctx, event.ID, next, cause.Error())
	})
}

func (d *Dispatcher) mark(ctx context.Context, op string, fn func(context.Context) error) error {
	return core.Bounded(ctx, d.cfg.Timeout, op, fn)
}

// RetryDelay doubles from one second per attempt and caps at a minute.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		return baseRetryDelay
	}
	delay := baseRetryDelay
	for range attempts - 1 {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
