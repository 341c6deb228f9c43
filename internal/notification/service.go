// AngelaMos | 2026
// service.go

package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/outbox"
)

type Service struct {
	repo    Repository
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(repo Repository, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
	}
}

// Deliver is the in-app outbox channel. The notification id is the event id,
// so a redelivered event does not show up twice.
func (s *Service) Deliver(ctx context.Context, event outbox.Event) error {
	tpl, err := Lookup(event.TemplateID)
	if err != nil {
		return err
	}
	if tpl.InApp == "" {
		return nil
	}

	message, err := render(tpl.ID+".in_app", tpl.InApp, event.Params)
	if err != nil {
		return err
	}

	n := &Notification{
		ID:        event.ID,
		AccountID: event.AccountID,
		Title:     tpl.Title,
		Message:   message,
		Kind:      string(event.Kind),
	}

	return core.Bounded(ctx, s.timeout, "create notification",
		func(ctx context.Context) error {
			created, err := s.repo.Create(ctx, n)
			if err == nil && !created {
				s.logger.DebugContext(ctx, "notification already delivered",
					"notification_id", n.ID)
			}
			return err
		})
}

func (s *Service) List(
	ctx context.Context,
	accountID string,
	unreadOnly bool,
	limit int,
) ([]Notification, error) {
	if accountID == "" {
		return nil, fmt.Errorf("list notifications: %w", core.ErrUnauthorized)
	}

	return core.BoundedValue(ctx, s.timeout, "list notifications",
		func(ctx context.Context) ([]Notification, error) {
			return s.repo.ListByAccount(ctx, accountID, unreadOnly, limit)
		})
}

func (s *Service) MarkRead(ctx context.Context, accountID, id string) error {
	if accountID == "" {
		return fmt.Errorf("mark notification read: %w", core.ErrUnauthorized)
	}

	return core.Bounded(ctx, s.timeout, "mark notification read",
		func(ctx context.Context) error {
			return s.repo.MarkRead(ctx, accountID, id)
		})
}
