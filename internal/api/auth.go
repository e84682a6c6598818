package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the knowledge-base routes with a static token. The
// comparison is constant-time so the check leaks nothing about how much of
// the token matched. With no token configured the handler mounts its routes
// without this middleware and /health and /metrics always stay open.
func BearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid API token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
