// AngelaMos | 2026
// snapshot.go

package quota

import (
	"time"
)

// Snapshot is a client-held optimistic copy of Usage. Pending counts local
// charges not yet confirmed. Pending only ever tightens the local view and is
// dropped on the next authoritative read.
type Snapshot struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Unbounded bool      `json:"unbounded"`
	Pending   int       `json:"pending"`
	ReadAt    time.Time `json:"read_at"`
}

func SnapshotOf(u Usage) Snapshot {
	return Snapshot{
		Used:      u.Used,
		Limit:     u.Limit,
		Unbounded: u.Unbounded,
		ReadAt:    u.ReadAt,
	}
}

// Charge records an optimistic local charge ahead of confirmation.
func (s *Snapshot) Charge() {
	s.Pending++
}

// Confirm settles one pending charge against the value the server returned.
func (s *Snapshot) Confirm(newUsed int) {
	if s.Pending > 0 {
		s.Pending--
	}
	if newUsed > s.Used {
		s.Used = newUsed
	}
}

// Reconcile replaces the copy with an authoritative read, including a lower
// counter after an admin reset.
func (s *Snapshot) Reconcile(u Usage) {
	*s = SnapshotOf(u)
}

// Displayed is what a UI shows: confirmed plus in-flight charges.
func (s Snapshot) Displayed() int {
	return s.Used + s.Pending
}

// MayAttempt is a local hint only; the gate decides. It never allows more
// than the last authoritative read did.
func (s Snapshot) MayAttempt() bool {
	if s.Unbounded {
		return true
	}
	return s.Used+s.Pending < s.Limit
}
