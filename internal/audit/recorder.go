// AngelaMos | 2026
// recorder.go

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/carterperez-dev/legalquota/internal/core"
)

// Logger is what privileged services depend on.
type Logger interface {
	Record(ctx context.Context, entry Entry) error
}

type Recorder struct {
	repo    Repository
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewRecorder(repo Repository, timeout time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Record always emits a structured log line, then persists the entry. A
// failed insert is returned so the caller can surface it; the log line
// remains the trail of record.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	r.logger.Info("privileged operation",
		"audit_id", entry.ID,
		"actor_id", entry.ActorID,
		"target_id", entry.TargetID,
		"action", entry.Action,
		"old_value", entry.OldValue,
		"new_value", entry.NewValue,
	)

	err := core.Bounded(ctx, r.timeout, "record audit entry",
		func(ctx context.Context) error {
			return r.repo.Insert(ctx, &entry)
		})
	if err != nil {
		r.logger.Error("audit entry not persisted",
			"audit_id", entry.ID,
			"error", err,
		)
		return err
	}

	return nil
}

func (r *Recorder) History(ctx context.Context, targetID string, limit int) ([]Entry, error) {
	return core.BoundedValue(ctx, r.timeout, "list audit entries",
		func(ctx context.Context) ([]Entry, error) {
			return r.repo.ListByTarget(ctx, targetID, limit)
		})
}
