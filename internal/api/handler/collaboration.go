package handler

import (
	"net/http"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
)

// CollaborationHandler serves /api/collaborations.
type CollaborationHandler struct{ Deps }

// NewCollaborationHandler creates a CollaborationHandler.
func NewCollaborationHandler(d Deps) *CollaborationHandler { return &CollaborationHandler{Deps: d} }

type collaborationListQuery struct {
	pageQuery
	Status  string `schema:"status" validate:"omitempty,oneof=Open Closed"`
	Urgency string `schema:"urgency" validate:"omitempty,oneof=Low Medium High"`
	Office  string `schema:"office"`
}

// List handles GET /api/collaborations.
func (h *CollaborationHandler) List(w http.ResponseWriter, r *http.Request) {
	var q collaborationListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.Collaboration{}).
		Scopes(policy.Scope(currentUser(r), policy.Collaboration))
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.Urgency != "" {
		db = db.Where("urgency = ?", q.Urgency)
	}
	if q.Office != "" {
		db = db.Where("office = ?", q.Office)
	}
	rows, page, err := paginate[model.Collaboration](db, q.pageQuery, "created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, rows, page)
}

func (h *CollaborationHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.Collaboration, bool) {
	var c model.Collaboration
	if err := h.DB.WithContext(r.Context()).First(&c, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "Collaboration not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.Collaboration, &c) {
		return nil, false
	}
	return &c, true
}

// Get handles GET /api/collaborations/{id}.
func (h *CollaborationHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, c)
}

type createCollaborationRequest struct {
	Title        string `json:"title" validate:"required,notblank"`
	Description  string `json:"description"`
	Availability string `json:"availability"`
	Urgency      string `json:"urgency" validate:"omitempty,oneof=Low Medium High"`
}

// Create handles POST /api/collaborations. The request is posted to the
// creator's office.
func (h *CollaborationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCollaborationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := currentUser(r)
	c := model.Collaboration{
		CreatedByID:   actor.ID,
		CreatedByName: displayName(actor),
		Office:        actor.Office,
		Title:         req.Title,
		Description:   req.Description,
		Availability:  req.Availability,
		Urgency:       req.Urgency,
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Collaboration, &c) {
		return
	}
	if err := h.DB.WithContext(r.Context()).Create(&c).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionCreate, model.ResourceCollaboration, c.ID, "Posted collaboration "+c.Title)
	h.Notify.NotifyCollaborationCreated(r.Context(), &c)
	render.JSON(w, http.StatusCreated, &c)
}

type updateCollaborationRequest struct {
	Title        *string `json:"title" validate:"omitempty,notblank"`
	Description  *string `json:"description"`
	Availability *string `json:"availability"`
	Urgency      *string `json:"urgency" validate:"omitempty,oneof=Low Medium High"`
	Status       *string `json:"status" validate:"omitempty,oneof=Open Closed"`
}

// Update handles PUT /api/collaborations/{id}.
func (h *CollaborationHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateCollaborationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	setIf(&c.Title, req.Title)
	setIf(&c.Description, req.Description)
	setIf(&c.Availability, req.Availability)
	setIf(&c.Urgency, req.Urgency)
	setIf(&c.Status, req.Status)
	if err := h.DB.WithContext(r.Context()).Save(c).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceCollaboration, c.ID, "Updated collaboration "+c.Title)
	h.Notify.NotifyCollaborationUpdated(r.Context(), c)
	render.JSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/collaborations/{id}.
func (h *CollaborationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(c).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceCollaboration, c.ID, "Deleted collaboration "+c.Title)
	h.Notify.NotifyCollaborationDeleted(r.Context(), c)
	render.Message(w, http.StatusOK, "Collaboration deleted successfully")
}
