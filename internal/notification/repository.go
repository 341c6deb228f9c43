// AngelaMos | 2026
// repository.go

package notification

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/carterperez-dev/legalquota/internal/core"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) (bool, error)
	ListByAccount(ctx context.Context, accountID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, accountID, id string) error
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// Create inserts n unless a notification with the same id exists, which
// makes redelivery of an outbox event harmless.
func (r *repository) Create(ctx context.Context, n *Notification) (bool, error) {
	query := `
		INSERT INTO notifications (id, account_id, title, message, kind)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.AccountID,
		n.Title,
		n.Message,
		n.Kind,
	)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) ListByAccount(
	ctx context.Context,
	accountID string,
	unreadOnly bool,
	limit int,
) ([]Notification, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, account_id, title, message, kind, read, created_at
		FROM notifications
		WHERE account_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY created_at DESC
		LIMIT $3`

	var out []Notification
	if err := r.db.SelectContext(ctx, &out, query, accountID, unreadOnly, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return out, nil
}

func (r *repository) MarkRead(ctx context.Context, accountID, id string) error {
	query := `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND account_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark notification read: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}

	return rows, nil
}

// MemoryRepository keeps notifications in process for tests and dry runs.
type MemoryRepository struct {
	mu    sync.Mutex
	items []Notification
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(_ context.Context, n *Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items {
		if existing.ID == n.ID {
			return false, nil
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.items = append(m.items, *n)
	return true, nil
}

func (m *MemoryRepository) ListByAccount(
	_ context.Context,
	accountID string,
	unreadOnly bool,
	limit int,
) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Notification
	for _, n := range slices.Backward(m.items) {
		if n.AccountID != accountID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkRead(_ context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].ID == id && m.items[i].AccountID == accountID {
			m.items[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("mark notification read: %w", core.ErrNotFound)
}

func (m *MemoryRepository) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.items)
	m.items = slices.DeleteFunc(m.items, func(n Notification) bool {
		return n.AccountID == accountID
	})
	return int64(before - len(m.items)), nil
}
