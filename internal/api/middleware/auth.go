// Package middleware provides HTTP middleware for D-Nothi.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/model"
	"gorm.io/gorm"
)

type contextKey string

const userKey contextKey = "auth_user"

// Authenticate validates the Bearer JWT, loads the user it names and injects
// the *model.User into the request context. The token may also arrive as a
// ?token= query parameter because EventSource cannot send headers.
//
// Any failure, including a failed user lookup, ends the request with 401.
func Authenticate(db *gorm.DB, secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				render.Error(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			claims, err := auth.ParseAccessToken(token, secret)
			if err != nil {
				if auth.IsExpired(err) {
					render.Error(w, http.StatusUnauthorized, "Token has expired")
					return
				}
				render.Error(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			var u model.User
			if err := db.WithContext(r.Context()).First(&u, "id = ?", claims.UserID).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					log.ErrorContext(r.Context(), "auth: load user", "user_id", claims.UserID, "err", err)
					render.Error(w, http.StatusUnauthorized, "Authentication failed")
					return
				}
				render.Error(w, http.StatusUnauthorized, "User not found or inactive")
				return
			}
			if !u.IsActive {
				render.Error(w, http.StatusUnauthorized, "User not found or inactive")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &u)))
		})
	}
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext extracts the authenticated user from the request context.
// Returns nil if not present.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

type forbiddenBody struct {
	Message       string   `json:"message"`
	RequiredRoles []string `json:"requiredRoles"`
	UserRole      string   `json:"userRole"`
}

// Authorize admits only users whose role is one of roles. Must be chained
// after Authenticate.
func Authorize(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil {
				render.Error(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !u.HasRole(roles...) {
				render.JSON(w, http.StatusForbidden, forbiddenBody{
					Message:       "Access denied. Insufficient permissions.",
					RequiredRoles: roles,
					UserRole:      u.Role,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
