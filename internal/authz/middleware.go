package authz

import (
	"log/slog"
	"net/http"

	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// Middleware wires authorization guards for HTTP handlers. The auth layer
// must have stored a Subject in the request context first; a missing
// subject yields 401, a denied requirement 403.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// RequireAny ensures the current user holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.require(Requirement{Permissions: perms})
}

// RequireAll ensures the current user holds every permission.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.require(Requirement{Permissions: perms, RequireAll: true})
}

// RequireRoles ensures the current user's role is among the given roles.
func (m Middleware) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return m.require(Requirement{Roles: roles})
}

// Require ensures the current user satisfies an arbitrary requirement.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return m.require(req)
}

func (m Middleware) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := SubjectFromContext(r.Context())
			decision := m.Guard.Evaluate(r.Context(), sub, req)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			if decision.Reason == ReasonAuthRequired {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", decision.Reason)
				return
			}
			if m.Logger != nil {
				m.Logger.Debug("request denied",
					slog.String("path", r.URL.Path),
					slog.String("reason", decision.Reason))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		})
	}
}
