package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/mail"
	"github.com/dnothi/dnothi/internal/model"
	"gorm.io/gorm"
)

// AuthConfig carries token settings for AuthHandler.
type AuthConfig struct {
	Secret      string
	AccessTTL   time.Duration
	ResetTTL    time.Duration
	FrontendURL string
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Deps
	cfg     AuthConfig
	refresh *auth.RefreshStore
	reset   *auth.ResetStore
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(d Deps, cfg AuthConfig, refresh *auth.RefreshStore, reset *auth.ResetStore) *AuthHandler {
	return &AuthHandler{Deps: d, cfg: cfg, refresh: refresh, reset: reset}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         *model.User `json:"user,omitempty"`
}

const invalidCredentials = "Invalid credentials"

// Login handles POST /api/auth/login. Unknown user, inactive user and wrong
// password all produce the same response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var found model.User
	err := h.DB.WithContext(r.Context()).
		Where("username = ? OR email = ?", req.Username, req.Username).
		First(&found).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail(w, r, err, "")
		return
	}
	var u *model.User
	if err == nil {
		u = &found
	}
	// The password is checked first so unknown and inactive accounts cost
	// the same bcrypt round as a wrong password.
	if !u.ValidatePassword(req.Password) || !u.IsActive {
		render.Error(w, http.StatusBadRequest, invalidCredentials)
		return
	}

	now := time.Now().UTC()
	if err := h.DB.WithContext(r.Context()).Model(u).UpdateColumn("last_login_at", now).Error; err != nil {
		h.Log.WarnContext(r.Context(), "login: stamp last login", "user_id", u.ID, "err", err)
	}
	u.LastLoginAt = &now

	resp, err := h.issueTokens(r, u)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.Audit.Record(r, u, auditEntry(model.ActionLogin, model.ResourceUser, u.ID, "User logged in"))
	render.JSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) issueTokens(r *http.Request, u *model.User) (*tokenResponse, error) {
	access, err := auth.IssueAccessToken(auth.Subject{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Office:   u.Office,
	}, h.cfg.Secret, h.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := h.refresh.Issue(r.Context(), u.ID)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{Token: access, RefreshToken: refresh, User: u}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Refresh handles POST /api/auth/refresh. The presented token is revoked
// and a new pair is returned.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, userID, err := h.refresh.Rotate(r.Context(), req.RefreshToken)
	if errors.Is(err, auth.ErrInvalidRefreshToken) {
		render.Error(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	var u model.User
	if err := h.DB.WithContext(r.Context()).First(&u, "id = ?", userID).Error; err != nil || !u.IsActive {
		if err := h.refresh.Revoke(r.Context(), next); err != nil {
			h.Log.WarnContext(r.Context(), "refresh: revoke token of missing user", "user_id", userID, "err", err)
		}
		render.Error(w, http.StatusUnauthorized, "User not found or inactive")
		return
	}
	access, err := auth.IssueAccessToken(auth.Subject{
		UserID: u.ID, Username: u.Username, Role: u.Role, Office: u.Office,
	}, h.cfg.Secret, h.cfg.AccessTTL)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.JSON(w, http.StatusOK, tokenResponse{Token: access, RefreshToken: next})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	// An empty body is fine.
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken != "" {
		if err := h.refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
			h.Log.WarnContext(r.Context(), "logout: revoke", "err", err)
		}
	}
	u := currentUser(r)
	h.audit(r, model.ActionLogout, model.ResourceUser, u.ID, "User logged out")
	render.Message(w, http.StatusOK, "Logged out successfully")
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, map[string]any{"user": currentUser(r)})
}

type updateMeRequest struct {
	FullName    *string `json:"fullName" validate:"omitempty,notblank"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone"`
	Designation *string `json:"designation"`
}

// UpdateMe handles PUT /api/auth/me. Role and office are not self-service.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u := *currentUser(r)
	if req.Email != nil && *req.Email != u.Email {
		taken, err := exists[model.User](h.DB.WithContext(r.Context()), "email = ? AND id <> ?", *req.Email, u.ID)
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
		if taken {
			render.Error(w, http.StatusBadRequest, "Email already in use")
			return
		}
		u.Email = *req.Email
	}
	setIf(&u.FullName, req.FullName)
	setIf(&u.Phone, req.Phone)
	setIf(&u.Designation, req.Designation)

	if err := h.DB.WithContext(r.Context()).Save(&u).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceUser, u.ID, "Updated own profile")
	render.JSON(w, http.StatusOK, map[string]any{"user": &u})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// ChangePassword handles PUT /api/auth/change-password. Every refresh token
// of the user is revoked.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u := *currentUser(r)
	if !u.ValidatePassword(req.CurrentPassword) {
		render.Error(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	u.Password = req.NewPassword
	if err := h.DB.WithContext(r.Context()).Save(&u).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := h.refresh.RevokeAll(r.Context(), u.ID); err != nil {
		h.Log.WarnContext(r.Context(), "change password: revoke sessions", "user_id", u.ID, "err", err)
	}
	h.audit(r, model.ActionUpdate, model.ResourceUser, u.ID, "Changed password")
	render.Message(w, http.StatusOK, "Password changed successfully")
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

const resetRequested = "If an account with that email exists, a password reset link has been sent"

// ForgotPassword handles POST /api/auth/forgot-password. The response never
// reveals whether the address is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var u model.User
	err := h.DB.WithContext(r.Context()).Where("email = ?", req.Email).First(&u).Error
	if err == nil && u.IsActive {
		h.sendReset(r, &u)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.Log.ErrorContext(r.Context(), "forgot password: lookup", "err", err)
	}
	render.Message(w, http.StatusOK, resetRequested)
}

func (h *AuthHandler) sendReset(r *http.Request, u *model.User) {
	ctx := r.Context()
	token, err := h.reset.Issue(ctx, u.ID)
	if err != nil {
		h.Log.ErrorContext(ctx, "forgot password: issue token", "user_id", u.ID, "err", err)
		return
	}
	msg, err := mail.PasswordReset(u.Email, mail.PasswordResetData{
		FullName: displayName(u),
		ResetURL: h.cfg.FrontendURL + "/reset-password?token=" + url.QueryEscape(token),
		Expires:  h.cfg.ResetTTL.String(),
	})
	if err != nil {
		h.Log.ErrorContext(ctx, "forgot password: render", "err", err)
		return
	}
	if err := h.Queue.EnqueueEmail(ctx, msg); err != nil {
		h.Log.ErrorContext(ctx, "forgot password: enqueue", "user_id", u.ID, "err", err)
	}
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := h.reset.Consume(r.Context(), req.Token)
	if errors.Is(err, auth.ErrInvalidResetToken) {
		render.Error(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	var u model.User
	if err := h.DB.WithContext(r.Context()).First(&u, "id = ?", userID).Error; err != nil {
		h.fail(w, r, err, "User not found")
		return
	}
	u.Password = req.Password
	if err := h.DB.WithContext(r.Context()).Save(&u).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := h.refresh.RevokeAll(r.Context(), u.ID); err != nil {
		h.Log.WarnContext(r.Context(), "reset password: revoke sessions", "user_id", u.ID, "err", err)
	}
	h.Audit.Record(r, &u, auditEntry(model.ActionUpdate, model.ResourceUser, u.ID, "Reset password"))
	render.Message(w, http.StatusOK, "Password has been reset successfully")
}
