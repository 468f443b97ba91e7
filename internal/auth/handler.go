package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parceltrack/parceltrack/internal/platform/httpx"
	"github.com/parceltrack/parceltrack/internal/users"
)

// Accounts is the slice of the user service the auth flows need.
type Accounts interface {
	Register(ctx context.Context, req users.RegisterRequest) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	accounts  Accounts
	tokens    *TokenService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, accounts Accounts, tokens *TokenService) *Handler {
	return &Handler{logger: logger, accounts: accounts, tokens: tokens, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         users.User `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondTokens(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondTokens(w, http.StatusOK, user)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	claims, err := h.tokens.ValidateToken(req.RefreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid refresh token")
		return
	}
	user, err := h.accounts.GetUser(r.Context(), claims.UserID)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown user")
		return
	}
	h.respondTokens(w, http.StatusOK, user)
}

func (h *Handler) respondTokens(w http.ResponseWriter, status int, user users.User) {
	access, err := h.tokens.CreateAccessToken(user.ID, user.Role)
	if err != nil {
		h.logger.Error("issue access token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	refresh, err := h.tokens.CreateRefreshToken(user.ID, user.Role)
	if err != nil {
		h.logger.Error("issue refresh token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, tokenResponse{AccessToken: access, RefreshToken: refresh, User: user})
}
