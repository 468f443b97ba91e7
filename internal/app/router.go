package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/parceltrack/parceltrack/internal/auth"
	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/deliveries"
	"github.com/parceltrack/parceltrack/internal/observability"
	"github.com/parceltrack/parceltrack/internal/packages"
	"github.com/parceltrack/parceltrack/internal/roles"
	"github.com/parceltrack/parceltrack/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthMiddleware     func(http.Handler) http.Handler
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *authz.PermissionsHandler
	PackagesHandler    *packages.Handler
	DeliveriesHandler  *deliveries.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthMiddleware != nil {
			r.Use(params.AuthMiddleware)
		}

		r.Route("/auth", func(r chi.Router) {
			r.Use(AuthRateLimiter())
			params.AuthHandler.MountRoutes(r)
		})
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		r.Route("/packages", params.PackagesHandler.MountRoutes)
		r.Route("/deliveries", params.DeliveriesHandler.MountRoutes)
	})

	return r
}
