package packages

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// Handler manages package endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *authz.Guard
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *authz.Guard, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, authz: mw, validator: validator.New()}
}

// MountRoutes registers package routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.PermPackagesTrack))
		r.Get("/track/{number}", h.trackPackage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.PermPackagesRead))
		r.Get("/", h.listPackages)
		r.Get("/{id}", h.getPackage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.PermPackagesCreate))
		r.Post("/", h.createPackage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.PermPackagesUpdate))
		r.Patch("/{id}", h.updatePackage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.PermPackagesCancel))
		r.Post("/{id}/cancel", h.cancelPackage)
	})
}

func (h *Handler) createPackage(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	var req CreatePackageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	p, err := h.service.CreatePackage(r.Context(), sub.ID, req)
	if err != nil {
		h.logger.Error("create package", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listPackages(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	list, err := h.service.ListPackages(r.Context(), sub.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"packages": list})
}

func (h *Handler) getPackage(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Admins may read any package; owners only their own.
	readAny := h.guard.Evaluate(r.Context(), sub, authz.Requirement{
		Permissions: []authz.Permission{authz.PermAdminAccess},
	}).Allowed
	p, err := h.service.GetPackage(r.Context(), id, sub.ID, readAny)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) trackPackage(w http.ResponseWriter, r *http.Request) {
	tracking, err := h.service.Track(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tracking)
}

func (h *Handler) updatePackage(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdatePackageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	p, err := h.service.UpdatePackage(r.Context(), id, sub.ID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) cancelPackage(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CancelPackage(r.Context(), id, sub.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}
