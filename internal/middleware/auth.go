package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/radar/internal/auth"
	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/repo"
)

type key string

const userKey key = "user"

// TokenResolver turns a bearer token into the identity it asserts.
type TokenResolver interface {
	ResolveToken(token string) (auth.Identity, error)
}

// UserLookup loads the live user record for an identity.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
}

// Authenticate requires a valid bearer token whose user still exists and is
// active. The user is loaded on every request, so deactivation takes effect
// before the token expires.
func Authenticate(tokens TokenResolver, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "not authenticated")
				return
			}

			id, err := tokens.ResolveToken(tokenStr)
			if err != nil {
				unauthorized(w, "could not validate credentials")
				return
			}

			u, err := users.GetByID(r.Context(), id.UserID)
			if errors.Is(err, repo.ErrNotFound) {
				unauthorized(w, "could not validate credentials")
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "load authenticated user", "user_id", id.UserID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !u.IsActive {
				unauthorized(w, "inactive user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// CurrentUser returns the user stored by Authenticate, or nil.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// WithUser stores u as the authenticated user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, msg)
}
