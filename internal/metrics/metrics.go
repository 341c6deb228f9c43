// AngelaMos | 2026
// metrics.go

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legalquota"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation in tests.
type Metrics struct {
	gateDecisions     *prometheus.CounterVec
	ledgerWrites      *prometheus.CounterVec
	anonymousDegraded *prometheus.CounterVec
	outboxDeliveries  *prometheus.CounterVec
	lifecycleEvents   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Access gate decisions by action, outcome and reason",
			},
			[]string{"action", "outcome", "reason"},
		),
		ledgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "writes_total",
				Help:      "Quota ledger writes by operation and result",
			},
			[]string{"op", "result"},
		),
		anonymousDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "anonymous",
				Name:      "degraded_total",
				Help:      "Anonymous limiter calls served fail-open by operation",
			},
			[]string{"op"},
		),
		outboxDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "deliveries_total",
				Help:      "Outbox delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		lifecycleEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Account lifecycle transitions by kind",
			},
			[]string{"kind"},
		),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		registerer = registry
		gatherer = registry
	}
	m.gatherer = gatherer

	m.gateDecisions = registerCounterVec(registerer, m.gateDecisions)
	m.ledgerWrites = registerCounterVec(registerer, m.ledgerWrites)
	m.anonymousDegraded = registerCounterVec(registerer, m.anonymousDegraded)
	m.outboxDeliveries = registerCounterVec(registerer, m.outboxDeliveries)
	m.lifecycleEvents = registerCounterVec(registerer, m.lifecycleEvents)

	return m
}

func registerCounterVec(
	registerer prometheus.Registerer,
	counter *prometheus.CounterVec,
) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return counter
}

func defaultLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) GateDecision(action, outcome, reason string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(
		defaultLabel(action),
		defaultLabel(outcome),
		defaultLabel(reason),
	).Inc()
}

func (m *Metrics) LedgerWrite(op string, err error) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(defaultLabel(op), result(err)).Inc()
}

func (m *Metrics) AnonymousDegraded(op string) {
	if m == nil {
		return
	}
	m.anonymousDegraded.WithLabelValues(defaultLabel(op)).Inc()
}

func (m *Metrics) OutboxDelivery(channel string, err error) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(defaultLabel(channel), result(err)).Inc()
}

func (m *Metrics) LifecycleTransition(kind string) {
	if m == nil {
		return
	}
	m.lifecycleEvents.WithLabelValues(defaultLabel(kind)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
