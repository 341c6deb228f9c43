// AngelaMos | 2026
// retry_test.go

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/legalquota/internal/core"
)

var fastRetry = retryPolicy{
	initial:    time.Millisecond,
	maxElapsed: time.Second,
	maxRetries: 3,
}

func TestWithRetry(t *testing.T) {
	t.Run("storage timeout is retried until success", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fastRetry, func(context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("update account: %w", core.ErrStorageTimeout)
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("retries stop at the limit", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fastRetry, func(context.Context) error {
			calls++
			return core.ErrStorageTimeout
		})

		require.ErrorIs(t, err, core.ErrStorageTimeout)
		assert.Equal(t, 4, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fastRetry, func(context.Context) error {
			calls++
			return fmt.Errorf("change tier: %w", core.ErrForbidden)
		})

		require.ErrorIs(t, err, core.ErrForbidden)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := withRetry(ctx, fastRetry, func(context.Context) error {
			calls++
			return core.ErrStorageTimeout
		})

		require.Error(t, err)
		assert.LessOrEqual(t, calls, 1)
	})
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	for _, raw := range []string{"-1", "ten", ""} {
		_, err := parseCount(raw)
		assert.Error(t, err, raw)
	}
}

func TestPrivilegedCommandsRequireOperator(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"tier", "set", "acct-1", "basis", "--operator", ""})

	err := cmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestOpKeepsTokenAcrossCalls(t *testing.T) {
	opts := &rootOptions{operator: "admin-1"}

	first, err := opts.op()
	require.NoError(t, err)
	second, err := opts.op()
	require.NoError(t, err)

	assert.NotEmpty(t, first.Token)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, "admin-1", first.Actor)
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"migrate"},
		{"keys", "generate"},
		{"token", "issue"},
		{"tier", "set"},
		{"queries", "set"},
		{"queries", "reset"},
		{"limit", "set"},
		{"limit", "clear"},
		{"admin", "grant"},
		{"admin", "revoke"},
		{"account", "provision"},
		{"account", "show"},
		{"lifecycle", "sweep"},
		{"lifecycle", "schedule"},
		{"lifecycle", "cancel"},
		{"lifecycle", "execute"},
		{"requests", "list"},
		{"requests", "process"},
		{"outbox", "flush"},
	} {
		found, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name(), path)
	}
}
