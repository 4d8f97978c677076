package api

import (
	"net/http"
	"strings"
)

// AuthMiddleware rejects callers that do not present the administrator
// bearer token. Stands in for the surrounding application's role check; the
// engine assumes it has run before any of its operations are invoked.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") && authHeader[7:] == token {
				next.ServeHTTP(w, r)
				return
			}

			writeError(w, http.StatusUnauthorized, "unauthorized", "administrator token required")
		})
	}
}
