// AngelaMos | 2026
// operator.go

package middleware

import (
	"net/http"

	"github.com/carterperez-dev/legalquota/internal/audit"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// Operator builds the audit identity of a privileged request: the
// authenticated account and the client's idempotency key, if any.
func Operator(r *http.Request) audit.Op {
	return audit.Op{
		Actor: GetAccountID(r.Context()),
		Token: r.Header.Get(IdempotencyKeyHeader),
	}
}
