package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// PermissionsHandler exposes the read-only permission catalog.
type PermissionsHandler struct {
	logger *slog.Logger
	authz  Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, mw Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, authz: mw}
}

// MountRoutes registers permission catalog routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(PermPermissionsRead))
		r.Get("/", h.listPermissions)
	})
}

type permissionView struct {
	Name        Permission `json:"name"`
	Description string     `json:"description"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	all := All()
	views := make([]permissionView, len(all))
	for i, p := range all {
		views[i] = permissionView{Name: p, Description: Describe(p)}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}
