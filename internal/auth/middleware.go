package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
	"github.com/parceltrack/parceltrack/internal/users"
)

// UserLoader fetches the current user record for a validated token.
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// Middleware validates bearer tokens and stores the authorization subject in
// the request context. Requests without an Authorization header pass through
// anonymously; the guard denies them wherever authentication is required.
// A present but invalid token, or a token whose user cannot be loaded, is
// rejected outright.
func Middleware(tokens *TokenService, loader UserLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.ValidateToken(raw)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			if claims.TokenType != TokenTypeAccess {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "access token required")
				return
			}

			user, err := loader.GetUser(r.Context(), claims.UserID)
			if err != nil {
				// Fail closed: an unloadable user never passes as authenticated.
				if logger != nil {
					logger.Warn("load token user", slog.Int64("user_id", claims.UserID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown user")
				return
			}

			sub := user.Subject()
			ctx := authz.ContextWithSubject(r.Context(), &sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), parts[1] != ""
}
