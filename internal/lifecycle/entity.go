// AngelaMos | 2026
// entity.go

package lifecycle

import (
	"time"
)

// State is derived from an account on every read; only the scheduled
// deletion timestamp is stored.
type State string

const (
	StateActive            State = "active"
	StateInactivityFlagged State = "inactivity_flagged"
	StateDeletionScheduled State = "deletion_scheduled"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
)

// DeletionRequest is a user asking for their account to be removed. It is
// independent of the inactivity path and skips the grace period.
type DeletionRequest struct {
	ID          string        `db:"id"           json:"id"`
	AccountID   string        `db:"account_id"   json:"account_id"`
	Reason      *string       `db:"reason"       json:"reason,omitempty"`
	Status      RequestStatus `db:"status"       json:"status"`
	CreatedAt   time.Time     `db:"created_at"   json:"created_at"`
	CompletedAt *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// Report is the lifecycle view of one account.
type Report struct {
	AccountID           string     `json:"account_id"`
	Email               string     `json:"email"`
	Tier                string     `json:"tier"`
	State               State      `json:"state"`
	LastSeenAt          time.Time  `json:"last_seen_at"`
	InactiveFor         string     `json:"inactive_for"`
	ScheduledDeletionAt *time.Time `json:"scheduled_deletion_at,omitempty"`
}
