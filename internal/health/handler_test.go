// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct {
	err error
}

func (p pinger) Ping(context.Context) error {
	return p.err
}

func readiness(t *testing.T, h *Handler) (int, ReadinessResponse) {
	t.Helper()

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestReadiness(t *testing.T) {
	down := pinger{err: errors.New("connection refused")}

	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
	}{
		{
			name: "all healthy",
			checks: []Check{
				{Name: "database", Checker: pinger{}, Critical: true},
				{Name: "anonymous_store", Checker: pinger{}},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "anonymous store down stays in rotation",
			checks: []Check{
				{Name: "database", Checker: pinger{}, Critical: true},
				{Name: "anonymous_store", Checker: down},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name: "database down",
			checks: []Check{
				{Name: "database", Checker: down, Critical: true},
				{Name: "anonymous_store", Checker: pinger{}},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
		},
		{
			name:       "missing checker",
			checks:     []Check{{Name: "database", Critical: true}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readiness(t, NewHandler(tt.checks...))
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestShutdownFailsProbes(t *testing.T) {
	h := NewHandler(Check{Name: "database", Checker: pinger{}, Critical: true})
	h.SetShutdown(true)

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}
