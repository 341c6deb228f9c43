// AngelaMos | 2026
// snapshot_test.go

package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotPendingOnlyRestricts(t *testing.T) {
	s := SnapshotOf(Usage{Used: 48, Limit: 50})

	assert.True(t, s.MayAttempt())
	s.Charge()
	assert.True(t, s.MayAttempt())
	s.Charge()
	assert.False(t, s.MayAttempt(), "pending charges count against the budget")
	assert.Equal(t, 50, s.Displayed())

	s.Confirm(49)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 49, s.Used)
}

func TestSnapshotStaleClientRegainsAfterReset(t *testing.T) {
	s := SnapshotOf(Usage{Used: 50, Limit: 50})
	s.Charge()
	assert.False(t, s.MayAttempt())

	s.Reconcile(Usage{Used: 0, Limit: 50})

	assert.Equal(t, 0, s.Used)
	assert.Equal(t, 0, s.Pending)
	assert.True(t, s.MayAttempt())
}

func TestSnapshotConfirmNeverLowers(t *testing.T) {
	s := SnapshotOf(Usage{Used: 10, Limit: 50})
	s.Charge()
	s.Confirm(3)
	assert.Equal(t, 10, s.Used)
	assert.Equal(t, 0, s.Pending)
}

func TestSnapshotUnbounded(t *testing.T) {
	s := SnapshotOf(Usage{Used: 10_000, Unbounded: true})
	s.Charge()
	assert.True(t, s.MayAttempt())
}
