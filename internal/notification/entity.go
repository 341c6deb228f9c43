// AngelaMos | 2026
// entity.go

package notification

import (
	"time"
)

type Notification struct {
	ID        string    `db:"id"         json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	Title     string    `db:"title"      json:"title"`
	Message   string    `db:"message"    json:"message"`
	Kind      string    `db:"kind"       json:"kind"`
	Read      bool      `db:"read"       json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
