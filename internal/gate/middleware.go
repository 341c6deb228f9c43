// AngelaMos | 2026
// middleware.go

package gate

import (
	"context"
	"errors"
	"net/http"

	"github.com/carterperez-dev/legalquota/internal/core"
)

var errActionFailed = errors.New("gated action failed")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Require wraps a billable handler: it is reached only when the gate allows
// action, and the actor is charged only when it answers below 400.
func (g *Gate) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var served bool

			_, err := g.Run(r.Context(), ActorFromRequest(r), action,
				func(ctx context.Context) error {
					served = true
					rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
					next.ServeHTTP(rec, r.WithContext(ctx))
					if rec.status >= http.StatusBadRequest {
						return errActionFailed
					}
					return nil
				})

			switch {
			case err == nil, errors.Is(err, errActionFailed):
			case WriteDenied(w, err):
			case served:
				// response already sent; the charge outcome is unknown
				g.logger.ErrorContext(r.Context(), "charge after gated action failed",
					"action", action,
					"account_id", ActorFromRequest(r).AccountID,
					"error", err,
				)
			default:
				core.HandleServiceError(w, err, "account")
			}
		})
	}
}
