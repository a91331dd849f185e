package handler

import (
	"net/http"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/auth"
	"github.com/dnothi/dnothi/internal/mail"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
	"gorm.io/gorm"
)

// UserHandler serves /api/users.
type UserHandler struct {
	Deps
	refresh      *auth.RefreshStore
	defaultQuota int64
	loginURL     string
}

// NewUserHandler creates a UserHandler. defaultQuota applies to users
// created without an explicit storage quota.
func NewUserHandler(d Deps, refresh *auth.RefreshStore, defaultQuota int64, frontendURL string) *UserHandler {
	return &UserHandler{Deps: d, refresh: refresh, defaultQuota: defaultQuota, loginURL: frontendURL + "/login"}
}

type userListQuery struct {
	pageQuery
	Role     string `schema:"role"`
	Office   string `schema:"office"`
	Search   string `schema:"search"`
	IsActive *bool  `schema:"isActive"`
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var q userListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Scopes(policy.Scope(currentUser(r), policy.User))
	if q.Role != "" {
		db = db.Where("role = ?", q.Role)
	}
	if q.Office != "" {
		db = db.Where("office = ?", q.Office)
	}
	if q.IsActive != nil {
		db = db.Where("is_active = ?", *q.IsActive)
	}
	if q.Search != "" {
		s := like(q.Search)
		db = db.Where("LOWER(username) LIKE ? ESCAPE '\\' OR LOWER(full_name) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\'", s, s, s)
	}
	users, page, err := paginate[model.User](db, q.pageQuery, "created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, users, page)
}

func (h *UserHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.User, bool) {
	var u model.User
	if err := h.DB.WithContext(r.Context()).First(&u, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "User not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.User, &u) {
		return nil, false
	}
	return &u, true
}

// Get handles GET /api/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, u)
}

type createUserRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=50"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	FullName     string `json:"fullName" validate:"required,notblank"`
	Role         string `json:"role" validate:"required,oneof=SystemAdmin Admin Supervisor Agent"`
	Office       string `json:"office"`
	Designation  string `json:"designation"`
	Phone        string `json:"phone"`
	StorageQuota *int64 `json:"storageQuota" validate:"omitempty,min=0"`
}

// Create handles POST /api/users. An Admin creates users in their own office
// only and never SystemAdmins.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := currentUser(r)
	u := model.User{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Role:         req.Role,
		Office:       req.Office,
		Designation:  req.Designation,
		Phone:        req.Phone,
		IsActive:     true,
		StorageQuota: h.defaultQuota,
	}
	if u.Office == "" && actor.Role == model.RoleAdmin {
		u.Office = actor.Office
	}
	setIf(&u.StorageQuota, req.StorageQuota)
	if !h.authorize(w, r, policy.ActionCreate, policy.User, &u) {
		return
	}

	taken, err := exists[model.User](h.DB.WithContext(r.Context()), "username = ? OR email = ?", u.Username, u.Email)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	if taken {
		render.Error(w, http.StatusBadRequest, "Username or email already exists")
		return
	}
	if err := h.DB.WithContext(r.Context()).Create(&u).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}

	h.audit(r, model.ActionCreate, model.ResourceUser, u.ID, "Created user "+u.Username)
	h.Notify.NotifyUserCreated(r.Context(), &u)
	h.sendWelcome(r, &u, req.Password)
	render.JSON(w, http.StatusCreated, &u)
}

func (h *UserHandler) sendWelcome(r *http.Request, u *model.User, password string) {
	msg, err := mail.Welcome(u.Email, mail.WelcomeData{
		FullName: displayName(u),
		Username: u.Username,
		Password: password,
		LoginURL: h.loginURL,
	})
	if err == nil {
		err = h.Queue.EnqueueEmail(r.Context(), msg)
	}
	if err != nil {
		h.Log.WarnContext(r.Context(), "welcome email", "user_id", u.ID, "err", err)
	}
}

type updateUserRequest struct {
	Email        *string `json:"email" validate:"omitempty,email"`
	FullName     *string `json:"fullName" validate:"omitempty,notblank"`
	Role         *string `json:"role" validate:"omitempty,oneof=SystemAdmin Admin Supervisor Agent"`
	Office       *string `json:"office"`
	Designation  *string `json:"designation"`
	Phone        *string `json:"phone"`
	IsActive     *bool   `json:"isActive"`
	StorageQuota *int64  `json:"storageQuota" validate:"omitempty,min=0"`
}

// Update handles PUT /api/users/{id}. Both the current and the resulting
// user are authorized, so an Admin cannot move a user out of their office
// or promote anyone to SystemAdmin.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
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
	}
	actor := currentUser(r)
	if req.IsActive != nil && !*req.IsActive && u.ID == actor.ID {
		render.Error(w, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}
	setIf(&u.Email, req.Email)
	setIf(&u.FullName, req.FullName)
	setIf(&u.Role, req.Role)
	setIf(&u.Office, req.Office)
	setIf(&u.Designation, req.Designation)
	setIf(&u.Phone, req.Phone)
	setIf(&u.IsActive, req.IsActive)
	setIf(&u.StorageQuota, req.StorageQuota)
	if !h.authorize(w, r, policy.ActionUpdate, policy.User, u) {
		return
	}

	if err := h.DB.WithContext(r.Context()).Save(u).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	if !u.IsActive {
		h.revokeSessions(r, u.ID)
	}
	h.audit(r, model.ActionUpdate, model.ResourceUser, u.ID, "Updated user "+u.Username)
	h.Notify.NotifyUserUpdated(r.Context(), u)
	render.JSON(w, http.StatusOK, u)
}

// Delete handles DELETE /api/users/{id}. The row is removed together with
// its meeting memberships and sessions; tasks and leaves keep the copied
// user name.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") == currentUser(r).ID {
		render.Error(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}
	u, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM meeting_users WHERE user_id = ?", u.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&model.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&model.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(u).Error
	})
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceUser, u.ID, "Deleted user "+u.Username)
	h.Notify.NotifyUserDeleted(r.Context(), u.ID, u.Username)
	render.Message(w, http.StatusOK, "User deleted successfully")
}

type userStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// SetStatus handles PUT /api/users/{id}/status.
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req userStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !*req.IsActive && u.ID == currentUser(r).ID {
		render.Error(w, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}
	if err := h.DB.WithContext(r.Context()).Model(u).Update("is_active", *req.IsActive).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	u.IsActive = *req.IsActive

	desc := "Activated user " + u.Username
	if !u.IsActive {
		desc = "Deactivated user " + u.Username
		h.revokeSessions(r, u.ID)
	}
	h.audit(r, model.ActionUpdate, model.ResourceUser, u.ID, desc)
	h.Notify.NotifyUserUpdated(r.Context(), u)
	render.JSON(w, http.StatusOK, u)
}

type setPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

// SetPassword handles PUT /api/users/{id}/password.
func (h *UserHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req setPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u.Password = req.Password
	if err := h.DB.WithContext(r.Context()).Save(u).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.revokeSessions(r, u.ID)
	h.audit(r, model.ActionUpdate, model.ResourceUser, u.ID, "Reset password for "+u.Username)
	render.Message(w, http.StatusOK, "Password updated successfully")
}

func (h *UserHandler) revokeSessions(r *http.Request, userID string) {
	if err := h.refresh.RevokeAll(r.Context(), userID); err != nil {
		h.Log.WarnContext(r.Context(), "revoke sessions", "user_id", userID, "err", err)
	}
}
