// Package rbac gates routes on the role carried in the verified claims.
package rbac

import (
	"errors"
	"net/http"

	"github.com/tickethub/tickethub/pkg/middleware"
	"github.com/tickethub/tickethub/pkg/response"
)

// ErrUnauthorized means the caller is authenticated but lacks the role.
var ErrUnauthorized = errors.New("unauthorized")

// HasRole admits only callers whose role is one of roles. It must run after
// middleware.Auth; a request without claims gets 401, a role mismatch 403.
func HasRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := middleware.RoleFromCtx(r.Context())
			if !ok {
				response.Unauthorized(w, "Unauthorized")
				return
			}
			if err := Check(role, allowed); err != nil {
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Check returns ErrUnauthorized unless role is in allowed.
func Check(role string, allowed map[string]bool) error {
	if !allowed[role] {
		return ErrUnauthorized
	}
	return nil
}
