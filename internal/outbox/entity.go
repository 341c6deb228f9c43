// AngelaMos | 2026
// entity.go

package outbox

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

type Kind string

const (
	KindTierChanged        Kind = "tier_changed"
	KindDeletionScheduled  Kind = "deletion_scheduled"
	KindDeletionCancelled  Kind = "deletion_cancelled"
	KindAccountDeleted     Kind = "account_deleted"
	KindAccountProvisioned Kind = "account_provisioned"
)

// Params is the template payload, stored as JSONB.
type Params map[string]string

func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

func (p *Params) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Params{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan params: unsupported type %T", src)
	}
	return json.Unmarshal(raw, p)
}

// Channels lists the channels that already accepted an event, stored as a
// JSONB array.
type Channels []string

func (c Channels) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *Channels) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan channels: unsupported type %T", src)
	}
	return json.Unmarshal(raw, c)
}

func (c Channels) Has(name string) bool {
	return slices.Contains(c, name)
}

// Event is one lifecycle side effect waiting for delivery. DedupeKey is
// unique: emitting the same key twice stores one event. DeliveredVia grows as
// channels succeed, so a retry only revisits the channels that failed.
type Event struct {
	ID            string     `db:"id"              json:"id"`
	DedupeKey     string     `db:"dedupe_key"      json:"dedupe_key"`
	AccountID     string     `db:"account_id"      json:"account_id"`
	Kind          Kind       `db:"kind"            json:"kind"`
	Recipient     string     `db:"recipient"       json:"recipient"`
	TemplateID    string     `db:"template_id"     json:"template_id"`
	Params        Params     `db:"params"          json:"params"`
	Status        Status     `db:"status"          json:"status"`
	Attempts      int        `db:"attempts"        json:"attempts"`
	LastError     *string    `db:"last_error"      json:"last_error,omitempty"`
	NextAttemptAt time.Time  `db:"next_attempt_at" json:"next_attempt_at"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
	DeliveredAt   *time.Time `db:"delivered_at"    json:"delivered_at,omitempty"`
	DeliveredVia  Channels   `db:"delivered_via"   json:"delivered_via,omitempty"`
}

// DedupeKey joins the parts that identify one operation's side effect.
func DedupeKey(kind Kind, accountID, token string) string {
	return fmt.Sprintf("%s:%s:%s", kind, accountID, token)
}
