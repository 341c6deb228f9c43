// AngelaMos | 2026
// emitter.go

package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/legalquota/internal/core"
)

// Emitter is the producer side of the outbox. Core services call Emit and
// never talk to a delivery channel directly.
type Emitter struct {
	repo    Repository
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewEmitter(repo Repository, timeout time.Duration, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Emit stores event for later delivery and reports whether it was new. A
// repeated dedupe key is not an error.
func (e *Emitter) Emit(ctx context.Context, event Event) (bool, error) {
	if event.DedupeKey == "" || event.AccountID == "" || event.TemplateID == "" {
		return false, fmt.Errorf("emit %s: incomplete event: %w", event.Kind, core.ErrInvalidInput)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = e.now()
	}

	inserted, err := core.BoundedValue(ctx, e.timeout, "emit lifecycle event",
		func(ctx context.Context) (bool, error) {
			return e.repo.Insert(ctx, &event)
		})
	if err != nil {
		return false, err
	}

	if !inserted {
		e.logger.DebugContext(ctx, "lifecycle event already emitted",
			"dedupe_key", event.DedupeKey,
		)
		return false, nil
	}

	e.logger.InfoContext(ctx, "lifecycle event emitted",
		"event_id", event.ID,
		"kind", event.Kind,
		"account_id", event.AccountID,
	)
	return true, nil
}
