package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const (
	// PrincipalKey carries the resolved identity through the request context.
	PrincipalKey contextKey = "principal"
)

const anonymousPrincipal = "anonymous"

// PrincipalAuth resolves the requesting principal. When apiKeys is non-empty
// the Authorization header must match one of the configured keys; with no
// keys configured the deployment is open and the principal comes from the
// X-Principal-ID header, defaulting to anonymous.
func PrincipalAuth(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/" {
				next.ServeHTTP(w, r)
				return
			}

			principal := strings.TrimSpace(r.Header.Get("X-Principal-ID"))

			if len(apiKeys) > 0 {
				auth := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
				if auth == "" {
					http.Error(w, "missing Authorization header", http.StatusUnauthorized)
					return
				}

				// constant-time comparison to prevent timing attacks
				matched := ""
				for p, key := range apiKeys {
					if subtle.ConstantTimeCompare([]byte(auth), []byte(key)) == 1 {
						matched = p
						break
					}
				}
				if matched == "" {
					http.Error(w, "invalid API key", http.StatusUnauthorized)
					return
				}
				principal = matched
			}

			if principal == "" {
				principal = anonymousPrincipal
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipalFromContext extracts the resolved principal, defaulting to
// anonymous so storage-layer row filtering always has an identity to scope by.
func GetPrincipalFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(PrincipalKey).(string); ok && p != "" {
		return p
	}
	return anonymousPrincipal
}
