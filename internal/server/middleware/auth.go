package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openfloor/tradedesk/internal/domain"
)

// deskClaims are the JWT claims the desk issues: the subject is the trader
// ID, plus a display name and the manager flag.
type deskClaims struct {
	Name      string `json:"name"`
	IsManager bool   `json:"is_manager"`
	jwt.RegisteredClaims
}

// Auth returns middleware that validates a signed JWT and stores the
// resulting actor in the request context. Tokens arrive as a Bearer token
// in the Authorization header, or as a ?token= query parameter for
// WebSocket connects that cannot set headers. If secret is empty,
// authentication is disabled and requests run as an anonymous manager,
// which is only acceptable in local development.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				actor := domain.Actor{ID: "dev", Name: "dev", IsManager: true}
				next.ServeHTTP(w, r.WithContext(domain.WithActor(r.Context(), actor)))
				return
			}

			tokenStr := extractToken(r)
			if tokenStr == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			claims := &deskClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			actor := domain.Actor{
				ID:        claims.Subject,
				Name:      claims.Name,
				IsManager: claims.IsManager,
			}
			next.ServeHTTP(w, r.WithContext(domain.WithActor(r.Context(), actor)))
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the token query parameter.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
