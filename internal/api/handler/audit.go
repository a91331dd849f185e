package handler

import (
	"net/http"
	"time"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
)

// AuditHandler serves /api/audit. Audit rows are never changed through the
// API.
type AuditHandler struct{ Deps }

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(d Deps) *AuditHandler { return &AuditHandler{Deps: d} }

type auditListQuery struct {
	pageQuery
	UserID       string `schema:"userId"`
	Action       string `schema:"action"`
	ResourceType string `schema:"resourceType"`
	ResourceID   string `schema:"resourceId"`
	From         string `schema:"from" validate:"omitempty,datetime=2006-01-02"`
	To           string `schema:"to" validate:"omitempty,datetime=2006-01-02"`
}

// List handles GET /api/audit. from and to are inclusive calendar days.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	var q auditListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	if !h.authorize(w, r, policy.ActionList, policy.Audit, nil) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.AuditLog{}).
		Scopes(policy.Scope(currentUser(r), policy.Audit))
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}
	if q.ResourceType != "" {
		db = db.Where("resource_type = ?", q.ResourceType)
	}
	if q.ResourceID != "" {
		db = db.Where("resource_id = ?", q.ResourceID)
	}
	if q.From != "" {
		from, _ := time.Parse(model.DateLayout, q.From)
		db = db.Where("created_at >= ?", from)
	}
	if q.To != "" {
		to, _ := time.Parse(model.DateLayout, q.To)
		db = db.Where("created_at < ?", to.AddDate(0, 0, 1))
	}
	rows, page, err := paginate[model.AuditLog](db, q.pageQuery, "created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, rows, page)
}

// Get handles GET /api/audit/{id}.
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	var a model.AuditLog
	if err := h.DB.WithContext(r.Context()).First(&a, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "Audit log not found")
		return
	}
	if !h.authorize(w, r, policy.ActionView, policy.Audit, &a) {
		return
	}
	render.JSON(w, http.StatusOK, &a)
}
