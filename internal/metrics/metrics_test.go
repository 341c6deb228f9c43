// AngelaMos | 2026
// metrics_test.go

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.GateDecision("chat", "deny", "quota_exceeded")
	m.GateDecision("", "allow", "")
	m.LedgerWrite("increment", nil)
	m.LedgerWrite("increment", errors.New("boom"))
	m.AnonymousDegraded("check")
	m.OutboxDelivery("email", nil)
	m.LifecycleTransition("deletion_scheduled")

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.gateDecisions.WithLabelValues("chat", "deny", "quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.gateDecisions.WithLabelValues("unknown", "allow", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerWrites.WithLabelValues("increment", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerWrites.WithLabelValues("increment", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anonymousDegraded.WithLabelValues("check")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxDeliveries.WithLabelValues("email", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.lifecycleEvents.WithLabelValues("deletion_scheduled")))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := New(registry)
	second := New(registry)

	assert.Same(t, first.gateDecisions, second.gateDecisions)
	assert.Same(t, first.outboxDeliveries, second.outboxDeliveries)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.GateDecision("chat", "allow", "")
		m.LedgerWrite("reset", nil)
		m.AnonymousDegraded("increment")
		m.OutboxDelivery("in_app", nil)
		m.LifecycleTransition("deleted")
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.GateDecision("chat", "allow", "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "legalquota_gate_decisions_total")
}
