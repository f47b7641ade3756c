// Package middleware provides the HTTP middleware chain: bearer token
// authentication, CORS and per-client rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vrn21/payfree/internal/app/services/auth"
)

type contextKey string

const usernameKey contextKey = "auth.username"

// Auth rejects requests without a valid bearer token and stores the token
// subject in the request context. Paths in skipPaths pass through untouched.
type Auth struct {
	tokens    *auth.TokenIssuer
	skipPaths []string
}

// NewAuth builds the authentication middleware.
func NewAuth(tokens *auth.TokenIssuer, skipPaths ...string) *Auth {
	return &Auth{tokens: tokens, skipPaths: skipPaths}
}

// Handler wraps next with bearer token verification.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}

		username, err := a.tokens.Verify(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// skipped reports whether path is exempt from authentication. An entry
// ending in "/" (other than the root) matches as a prefix.
func (a *Auth) skipped(path string) bool {
	for _, p := range a.skipPaths {
		if path == p {
			return true
		}
		if len(p) > 1 && strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// UsernameFromContext returns the authenticated subject, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
