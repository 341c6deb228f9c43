// AngelaMos | 2026
// entity.go

package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/carterperez-dev/legalquota/internal/core"
)

// Entry is one privileged operation: who did what to which account, and the
// value it replaced.
type Entry struct {
	ID        string    `db:"id"         json:"id"`
	ActorID   string    `db:"actor_id"   json:"actor_id"`
	TargetID  string    `db:"target_id"  json:"target_id"`
	Action    string    `db:"action"     json:"action"`
	OldValue  string    `db:"old_value"  json:"old_value"`
	NewValue  string    `db:"new_value"  json:"new_value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	ActionSetQueries     = "quota.set"
	ActionResetQueries   = "quota.reset"
	ActionSetLimit       = "quota.limit"
	ActionChangeTier     = "tier.change"
	ActionGrantAdmin     = "admin.grant"
	ActionRevokeAdmin    = "admin.revoke"
	ActionProvision      = "account.provision"
	ActionScheduleDelete = "lifecycle.schedule"
	ActionCancelDelete   = "lifecycle.cancel"
	ActionExecuteDelete  = "lifecycle.execute"
	ActionProcessRequest = "lifecycle.request"
	ActionClearAnonymous = "anonymous.clear"
)

// Op identifies one privileged operation: the actor performing it and the
// token that makes retries of the same operation idempotent.
type Op struct {
	Actor string
	Token string
}

func (o Op) Validate() error {
	if strings.TrimSpace(o.Actor) == "" {
		return fmt.Errorf("operator required: %w", core.ErrInvalidInput)
	}
	return nil
}

// Tokenized returns o with a fresh token when the caller supplied none.
func (o Op) Tokenized() Op {
	if o.Token == "" {
		o.Token = ulid.Make().String()
	}
	return o
}
