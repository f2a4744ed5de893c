package middleware

import (
	"net/http"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/model"
)

// RequireRole returns middleware that admits principals holding any of the
// given roles. Must be applied after Session.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if !p.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits admins only.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

// RequireReviewer admits reviewers and admins.
func RequireReviewer() func(http.Handler) http.Handler {
	return RequireRole(model.RoleReviewer, model.RoleAdmin)
}

// RequireProvider admits providers and admins.
func RequireProvider() func(http.Handler) http.Handler {
	return RequireRole(model.RoleProvider, model.RoleAdmin)
}
