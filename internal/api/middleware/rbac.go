package middleware

import (
	"net/http"

	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
)

// RequireScope returns middleware that rejects tokens whose scope does not grant required.
func RequireScope(required auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetScope(r.Context()).Allows(required) {
				jsonForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireWrite is shorthand for RequireScope(auth.ScopeWrite).
func RequireWrite(next http.Handler) http.Handler {
	return RequireScope(auth.ScopeWrite)(next)
}
