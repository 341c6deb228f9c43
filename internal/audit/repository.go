// AngelaMos | 2026
// repository.go

package audit

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/carterperez-dev/legalquota/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	ListByTarget(ctx context.Context, targetID string, limit int) ([]Entry, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO audit_log (id, actor_id, target_id, action, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &entry.CreatedAt, query,
		entry.ID,
		entry.ActorID,
		entry.TargetID,
		entry.Action,
		entry.OldValue,
		entry.NewValue,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

func (r *repository) ListByTarget(
	ctx context.Context,
	targetID string,
	limit int,
) ([]Entry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, actor_id, target_id, action, old_value, new_value, created_at
		FROM audit_log
		WHERE target_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	var entries []Entry
	if err := r.db.SelectContext(ctx, &entries, query, targetID, limit); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	return entries, nil
}

// MemoryRepository keeps entries in process. Used when tests or tools run
// without a database.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Insert(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemoryRepository) ListByTarget(
	_ context.Context,
	targetID string,
	limit int,
) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range slices.Backward(m.entries) {
		if e.TargetID == targetID {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every entry in insertion order.
func (m *MemoryRepository) All() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.entries)
}
