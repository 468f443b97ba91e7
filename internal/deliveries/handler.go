package deliveries

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

// Handler manages delivery endpoints.
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

// MountRoutes registers delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.PermDeliveriesRead))
		r.Get("/{id}", h.getDelivery)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.PermDeliveriesCreate))
		r.Post("/", h.dispatch)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.PermDeliveriesClaim))
		r.Get("/open", h.listOpen)
		r.Post("/{id}/claim", h.claim)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.PermDeliveriesUpdate))
		r.Get("/mine", h.listMine)
		r.Post("/{id}/status", h.updateStatus)
	})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	var req DispatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	d, err := h.service.Dispatch(r.Context(), sub.ID, req)
	if err != nil {
		h.logger.Error("dispatch delivery", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	readAny := h.guard.Evaluate(r.Context(), sub, authz.Requirement{
		Permissions: []authz.Permission{authz.PermAdminAccess},
	}).Allowed
	d, err := h.service.GetDelivery(r.Context(), id, sub.ID, readAny)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) listOpen(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListOpen(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deliveries": list})
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	list, err := h.service.ListMine(r.Context(), sub.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deliveries": list})
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Claim(r.Context(), id, sub.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	sub := authz.SubjectFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	d, err := h.service.UpdateStatus(r.Context(), id, sub.ID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}
