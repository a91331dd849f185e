package handler

import (
	"net/http"
	"strings"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
)

// PermissionHandler serves /api/permissions.
type PermissionHandler struct{ Deps }

// NewPermissionHandler creates a PermissionHandler.
func NewPermissionHandler(d Deps) *PermissionHandler { return &PermissionHandler{Deps: d} }

// List handles GET /api/permissions.
func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionList, policy.Template, nil) {
		return
	}
	var rows []model.PermissionTemplate
	if err := h.DB.WithContext(r.Context()).Order("name").Find(&rows).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, rows, nil)
}

func (h *PermissionHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.PermissionTemplate, bool) {
	var p model.PermissionTemplate
	if err := h.DB.WithContext(r.Context()).First(&p, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "Permission template not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.Template, &p) {
		return nil, false
	}
	return &p, true
}

// Get handles GET /api/permissions/{id}.
func (h *PermissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, p)
}

type templateRequest struct {
	Name        string          `json:"name" validate:"required,notblank,max=100"`
	Description string          `json:"description"`
	Permissions map[string]bool `json:"permissions"`
}

func (h *PermissionHandler) nameTaken(r *http.Request, name, excludeID string) (bool, error) {
	return exists[model.PermissionTemplate](h.DB.WithContext(r.Context()),
		"LOWER(name) = ? AND id <> ?", strings.ToLower(name), excludeID)
}

// Create handles POST /api/permissions.
func (h *PermissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Template, nil) {
		return
	}
	name := strings.TrimSpace(req.Name)
	taken, err := h.nameTaken(r, name, "")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	if taken {
		render.Error(w, http.StatusBadRequest, "Template name already exists")
		return
	}
	actor := currentUser(r).Username
	p := model.PermissionTemplate{
		Name:        name,
		Description: req.Description,
		Permissions: model.NormalizePermissions(req.Permissions),
		CreatedBy:   actor,
		UpdatedBy:   actor,
	}
	if err := h.DB.WithContext(r.Context()).Create(&p).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionCreate, model.ResourceTemplate, p.ID, "Created permission template "+p.Name)
	h.Notify.NotifyTemplateCreated(r.Context(), &p)
	render.JSON(w, http.StatusCreated, &p)
}

type updateTemplateRequest struct {
	Name        *string         `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string         `json:"description"`
	Permissions map[string]bool `json:"permissions"`
}

// Update handles PUT /api/permissions/{id}. A permissions object, when
// present, replaces the stored flags.
func (h *PermissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		taken, err := h.nameTaken(r, name, p.ID)
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
		if taken {
			render.Error(w, http.StatusBadRequest, "Template name already exists")
			return
		}
		p.Name = name
	}
	setIf(&p.Description, req.Description)
	if req.Permissions != nil {
		p.Permissions = model.NormalizePermissions(req.Permissions)
	}
	p.UpdatedBy = currentUser(r).Username

	if err := h.DB.WithContext(r.Context()).Save(p).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceTemplate, p.ID, "Updated permission template "+p.Name)
	h.Notify.NotifyTemplateUpdated(r.Context(), p)
	render.JSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/permissions/{id}.
func (h *PermissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(p).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceTemplate, p.ID, "Deleted permission template "+p.Name)
	h.Notify.NotifyTemplateDeleted(r.Context(), p)
	render.Message(w, http.StatusOK, "Permission template deleted successfully")
}
