// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/carterperez-dev/legalquota/internal/core"
)

const accountKey contextKey = "account_id"

type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*AccessTokenClaims, error)
}

// AccessTokenClaims carries identity only. Tier and admin capability are
// resolved from the account record on every request, never from the token.
type AccessTokenClaims struct {
	AccountID string
}

// AdminChecker resolves admin capability fresh for each request.
type AdminChecker interface {
	IsAdmin(ctx context.Context, accountID string) (bool, error)
}

// Authenticator rejects requests without a valid bearer token.
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return identify(verifier, true)
}

// OptionalAuth attaches the account when a bearer token is present and lets
// anonymous requests through. A token that fails verification is still a
// 401: a broken session must not silently fall back to the anonymous budget.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return identify(verifier, false)
}

func identify(verifier TokenVerifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				if required {
					core.JSONError(w, core.UnauthorizedError("missing authorization token"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				core.JSONError(w, tokenError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), claims.AccountID)))
		})
	}
}

// RequireAdmin must run after Authenticator. An account that no longer
// exists is treated as lacking the capability.
func RequireAdmin(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := GetAccountID(r.Context())
			if accountID == "" {
				core.JSONError(w, core.UnauthorizedError("authentication required"))
				return
			}

			isAdmin, err := checker.IsAdmin(r.Context(), accountID)
			switch {
			case err != nil && !errors.Is(err, core.ErrNotFound):
				core.HandleServiceError(w, err, "account")
			case err != nil || !isAdmin:
				core.JSONError(w, core.ForbiddenError("insufficient permissions"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// ExtractToken returns the bearer credential, or "" for any other scheme.
func ExtractToken(r *http.Request) string {
	scheme, credential, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}

func tokenError(err error) error {
	switch {
	case core.IsAppError(err):
		return err
	case errors.Is(err, core.ErrTokenExpired):
		return core.TokenExpiredError()
	default:
		return core.TokenInvalidError()
	}
}

// WithAccountID returns ctx carrying accountID as the authenticated actor.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

// GetAccountID returns "" for anonymous requests.
func GetAccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountKey).(string)
	return id
}
