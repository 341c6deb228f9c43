// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/legalquota")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	c, err := load("")
	require.NoError(t, err)

	assert.Equal(t, 3, c.Quota.AnonymousBudget)
	assert.Equal(t, 3*time.Second, c.Store.Timeout)
	assert.Equal(t, 180*24*time.Hour, c.Lifecycle.InactivityAfter)
	assert.Equal(t, 7*24*time.Hour, c.Lifecycle.DeletionGrace)
	assert.Equal(t, "0.0.0.0:8080", c.Server.Address())
	assert.True(t, c.IsDevelopment())
	assert.False(t, c.SMTP.SMTPEnabled())
	assert.Empty(t, c.Actions.UpstreamURL)
}

func TestLoadFileThenEnv(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
quota:
  anonymous_budget: 5
  admin_allowlist:
    - " Root@Example.com "
    - ""
store:
  timeout: 2s
smtp:
  host: smtp.example.com
  from: noreply@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("ANONYMOUS_BUDGET", "7")
	t.Setenv("ACTIONS_UPSTREAM_URL", "http://actions:9000")

	c, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, c.Quota.AnonymousBudget, "env wins over file")
	assert.Equal(t, 2*time.Second, c.Store.Timeout)
	assert.Equal(t, []string{"root@example.com"}, c.Quota.AdminAllowlist)
	assert.True(t, c.SMTP.SMTPEnabled())
	assert.Equal(t, "http://actions:9000", c.Actions.UpstreamURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing database",
			env:  map[string]string{"DATABASE_URL": ""},
			want: "DATABASE_URL is required",
		},
		{
			name: "negative anonymous budget",
			env:  map[string]string{"ANONYMOUS_BUDGET": "-1"},
			want: "anonymous_budget",
		},
		{
			name: "production needs fingerprint secret",
			env:  map[string]string{"ENVIRONMENT": "production"},
			want: "FINGERPRINT_SECRET",
		},
		{
			name: "zero store timeout",
			env:  map[string]string{"STORE_TIMEOUT": "0s"},
			want: "store.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load("")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_TIMEOUT", "0s")
	t.Setenv("ANONYMOUS_BUDGET", "-2")

	_, err := load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.timeout")
	assert.Contains(t, err.Error(), "anonymous_budget")
}
