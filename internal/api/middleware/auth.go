package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
)

// Context keys for storing token information.
type contextKey string

const (
	subjectKey   contextKey = "subject"
	scopeKey     contextKey = "scope"
	claimsKey    contextKey = "claims"
	requestIDKey contextKey = "request_id"
)

func jsonErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// jsonUnauthorized writes an unauthorized error response.
func jsonUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="blazewatch"`)
	jsonErrorBody(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
}

// jsonForbidden writes a forbidden error response.
func jsonForbidden(w http.ResponseWriter) {
	jsonErrorBody(w, http.StatusForbidden, "FORBIDDEN", "access denied")
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth returns middleware that validates service tokens.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				metrics.AuthFailuresTotal.WithLabelValues("missing").Inc()
				jsonUnauthorized(w)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				metrics.AuthFailuresTotal.WithLabelValues("invalid").Inc()
				log.Printf("[%s] token rejected for %s: %v", GetRequestID(r.Context()), getClientIP(r), err)
				jsonUnauthorized(w)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, subjectKey, claims.Subject)
			ctx = context.WithValue(ctx, scopeKey, claims.Scope)
			ctx = context.WithValue(ctx, claimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the token subject from context.
func GetSubject(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey).(string); ok {
		return v
	}
	return ""
}

// GetScope returns the token scope from context.
func GetScope(ctx context.Context) auth.Scope {
	if v, ok := ctx.Value(scopeKey).(auth.Scope); ok {
		return v
	}
	return ""
}

// GetClaims returns the JWT claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(claimsKey).(*auth.Claims); ok {
		return c
	}
	return nil
}
