// AngelaMos | 2026
// repository.go

package outbox

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/carterperez-dev/legalquota/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, event *Event) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Event, error)
	MarkChannelDelivered(ctx context.Context, id string, channel string) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, next time.Time, reason string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const eventColumns = `id, dedupe_key, account_id, kind, recipient, template_id,
	params, status, attempts, last_error, next_attempt_at, created_at, delivered_at,
	delivered_via`

// Insert stores event unless its dedupe key already exists. It reports
// whether a row was written.
func (r *repository) Insert(ctx context.Context, event *Event) (bool, error) {
	query := `
		INSERT INTO lifecycle_events (
			id, dedupe_key, account_id, kind, recipient, template_id, params, next_attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.DedupeKey,
		event.AccountID,
		event.Kind,
		event.Recipient,
		event.TemplateID,
		event.Params,
		event.NextAttemptAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert lifecycle event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lifecycle event: %w", err)
	}

	return rows == 1, nil
}

// ClaimDue leases up to limit pending events in one statement. SKIP LOCKED
// lets several dispatchers poll the same table without handing out an event
// twice; the lease pushes next_attempt_at forward so a crashed dispatcher's
// claims become due again.
func (r *repository) ClaimDue(
	ctx context.Context,
	now time.Time,
	lease time.Duration,
	limit int,
) ([]Event, error) {
	query := `
		UPDATE lifecycle_events
		SET attempts = attempts + 1, next_attempt_at = $2
		WHERE id IN (
			SELECT id FROM lifecycle_events
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + eventColumns

	var events []Event
	err := r.db.SelectContext(ctx, &events, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim lifecycle events: %w", err)
	}

	return events, nil
}

// MarkChannelDelivered records that channel accepted the event. Recording
// the same channel twice is a no-op.
func (r *repository) MarkChannelDelivered(ctx context.Context, id string, channel string) error {
	query := `
		UPDATE lifecycle_events
		SET delivered_via = delivered_via || jsonb_build_array($2::text)
		WHERE id = $1 AND NOT delivered_via @> jsonb_build_array($2::text)`

	if _, err := r.db.ExecContext(ctx, query, id, channel); err != nil {
		return fmt.Errorf("mark channel delivered: %w", err)
	}
	return nil
}

func (r *repository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE lifecycle_events
		SET status = 'delivered', delivered_at = $2, last_error = NULL
		WHERE id = $1`

	return r.exec(ctx, "mark event delivered", query, id, at)
}

func (r *repository) MarkRetry(
	ctx context.Context,
	id string,
	next time.Time,
	reason string,
) error {
	query := `
		UPDATE lifecycle_events
		SET next_attempt_at = $2, last_error = $3
		WHERE id = $1`

	return r.exec(ctx, "mark event retry", query, id, next, reason)
}

func (r *repository) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE lifecycle_events
		SET status = 'failed', last_error = $2
		WHERE id = $1`

	return r.exec(ctx, "mark event failed", query, id, reason)
}

func (r *repository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

func (r *repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM lifecycle_events GROUP BY status`

	var rows []struct {
		Status Status `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count lifecycle events: %w", err)
	}

	counts := make(map[Status]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// MemoryRepository keeps events in process for tests and dry runs.
type MemoryRepository struct {
	mu     sync.Mutex
	events map[string]*Event
	keys   map[string]string
	order  []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[string]*Event),
		keys:   make(map[string]string),
	}
}

func (m *MemoryRepository) Insert(_ context.Context, event *Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[event.DedupeKey]; exists {
		return false, nil
	}

	stored := *event
	stored.Status = StatusPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.events[stored.ID] = &stored
	m.keys[stored.DedupeKey] = stored.ID
	m.order = append(m.order, stored.ID)
	return true, nil
}

func (m *MemoryRepository) ClaimDue(
	_ context.Context,
	now time.Time,
	lease time.Duration,
	limit int,
) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Event
	for _, e := range m.events {
		if e.Status == StatusPending && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]Event, 0, len(due))
	for _, e := range due {
		e.Attempts++
		e.NextAttemptAt = now.Add(lease)
		out = append(out, e.snapshot())
	}
	return out, nil
}

func (m *MemoryRepository) MarkChannelDelivered(_ context.Context, id string, channel string) error {
	return m.update(id, func(e *Event) {
		if !e.DeliveredVia.Has(channel) {
			e.DeliveredVia = append(e.DeliveredVia, channel)
		}
	})
}

func (m *MemoryRepository) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(e *Event) {
		e.Status = StatusDelivered
		e.DeliveredAt = &at
		e.LastError = nil
	})
}

func (m *MemoryRepository) MarkRetry(
	_ context.Context,
	id string,
	next time.Time,
	reason string,
) error {
	return m.update(id, func(e *Event) {
		e.NextAttemptAt = next
		e.LastError = &reason
	})
}

func (m *MemoryRepository) MarkFailed(_ context.Context, id string, reason string) error {
	return m.update(id, func(e *Event) {
		e.Status = StatusFailed
		e.LastError = &reason
	})
}

func (m *MemoryRepository) update(id string, fn func(*Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("update event: %w", core.ErrNotFound)
	}
	fn(e)
	return nil
}

func (m *MemoryRepository) CountByStatus(context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Status]int)
	for _, e := range m.events {
		counts[e.Status]++
	}
	return counts, nil
}

// Events returns stored events in insertion order.
func (m *MemoryRepository) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.events[id].snapshot())
	}
	return out
}

// ForAccount returns the stored events of one account.
func (m *MemoryRepository) ForAccount(accountID string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func (e *Event) snapshot() Event {
	c := *e
	c.DeliveredVia = slices.Clone(e.DeliveredVia)
	return c
}
