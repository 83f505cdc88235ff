package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/auth"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

// Auth creates authentication middleware. A bearer token is accepted when
// any verifier accepts it; with no verifiers every request is rejected.
func Auth(verifiers ...auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract the token from the Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"code":401,"message":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, `{"code":401,"message":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				http.Error(w, `{"code":401,"message":"empty bearer token"}`, http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			for _, v := range verifiers {
				principal, err := v.Verify(ctx, token)
				if err != nil {
					continue
				}
				log.FromContext(ctx).Debug("request authenticated", "subject", principal.Subject, "method", principal.Method)
				ctx = context.WithValue(ctx, PrincipalContextKey, principal)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			http.Error(w, `{"code":401,"message":"invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

// GetPrincipalFromContext retrieves the authenticated caller from the request context.
func GetPrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(PrincipalContextKey).(*auth.Principal)
	return p
}
