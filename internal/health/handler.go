// AngelaMos | 2026
// handler.go

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const probeBudget = 5 * time.Second

const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
	statusDraining    = "shutting_down"
)

type Checker interface {
	Ping(ctx context.Context) error
}

// Check is one dependency probe. A non-critical dependency that fails marks
// readiness degraded but keeps the instance in rotation; the anonymous store
// is one, since the gate fails open without it.
type Check struct {
	Name     string
	Checker  Checker
	Critical bool
}

type Handler struct {
	checks   []Check
	draining atomic.Bool
}

func NewHandler(checks ...Check) *Handler {
	return &Handler{checks: checks}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/livez", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

// SetShutdown flips both probes to 503 so the load balancer drains the
// instance before the listener closes.
func (h *Handler) SetShutdown(draining bool) {
	h.draining.Store(draining)
}

func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	if h.draining.Load() {
		writeProbe(w, http.StatusServiceUnavailable, ReadinessResponse{Status: statusDraining})
		return
	}
	writeProbe(w, http.StatusOK, ReadinessResponse{Status: statusOK})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeProbe(w, http.StatusServiceUnavailable, ReadinessResponse{Status: statusDraining})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeBudget)
	defer cancel()

	report := ReadinessResponse{Status: statusOK, Checks: h.probeAll(ctx)}
	code := http.StatusOK
	for _, c := range report.Checks {
		switch {
		case c.Healthy:
		case c.Critical:
			report.Status = statusUnavailable
			code = http.StatusServiceUnavailable
		case report.Status == statusOK:
			report.Status = statusDegraded
		}
	}

	writeProbe(w, code, report)
}

func (h *Handler) probeAll(ctx context.Context) []HealthCheck {
	results := make([]HealthCheck, len(h.checks))

	var g errgroup.Group
	for i, check := range h.checks {
		g.Go(func() error {
			results[i] = check.run(ctx)
			return nil
		})
	}
	//nolint:errcheck // probes report through results
	_ = g.Wait()

	return results
}

func (c Check) run(ctx context.Context) HealthCheck {
	result := HealthCheck{Name: c.Name, Critical: c.Critical}
	if c.Checker == nil {
		result.Message = "checker not configured"
		return result
	}

	start := time.Now()
	err := c.Checker.Ping(ctx)
	result.Latency = time.Since(start).Round(time.Microsecond).String()

	if err != nil {
		result.Message = "ping failed"
		return result
	}
	result.Healthy = true
	return result
}

func writeProbe(w http.ResponseWriter, code int, body ReadinessResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	//nolint:errcheck // best-effort response
	_ = json.NewEncoder(w).Encode(body)
}

// ReadinessResponse is the body of every probe. Liveness omits Checks.
type ReadinessResponse struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks,omitempty"`
}

type HealthCheck struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency,omitempty"`
	Message  string `json:"message,omitempty"`
}
