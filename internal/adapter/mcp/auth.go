package mcp

import (
	"net/http"
	"strings"
)

// AuthMiddleware guards the operations surface with a static API key,
// accepted either as a Bearer token or as the raw Authorization value.
// An empty apiKey disables the check entirely.
func AuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth {
			// No Bearer prefix, accept the raw header value
			token = auth
		}

		if token != apiKey {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
