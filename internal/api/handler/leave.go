package handler

import (
	"net/http"
	"time"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/mail"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
)

// LeaveHandler serves /api/leaves.
type LeaveHandler struct{ Deps }

// NewLeaveHandler creates a LeaveHandler.
func NewLeaveHandler(d Deps) *LeaveHandler { return &LeaveHandler{Deps: d} }

type leaveListQuery struct {
	pageQuery
	Status    string `schema:"status" validate:"omitempty,oneof=Pending Approved Rejected"`
	UserID    string `schema:"userId"`
	LeaveType string `schema:"leaveType"`
	Office    string `schema:"office"`
	StartDate string `schema:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `schema:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// List handles GET /api/leaves.
func (h *LeaveHandler) List(w http.ResponseWriter, r *http.Request) {
	var q leaveListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.Leave{}).
		Scopes(policy.Scope(currentUser(r), policy.Leave))
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.LeaveType != "" {
		db = db.Where("leave_type = ?", q.LeaveType)
	}
	if q.Office != "" {
		db = db.Where("office = ?", q.Office)
	}
	// Overlap with [startDate, endDate].
	if q.StartDate != "" {
		db = db.Where("end_date >= ?", q.StartDate)
	}
	if q.EndDate != "" {
		db = db.Where("start_date <= ?", q.EndDate)
	}
	leaves, page, err := paginate[model.Leave](db, q.pageQuery, "created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, leaves, page)
}

func (h *LeaveHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.Leave, bool) {
	var l model.Leave
	if err := h.DB.WithContext(r.Context()).First(&l, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "Leave not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.Leave, &l) {
		return nil, false
	}
	return &l, true
}

// Get handles GET /api/leaves/{id}.
func (h *LeaveHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, l)
}

type createLeaveRequest struct {
	UserID    string `json:"userId"`
	LeaveType string `json:"leaveType" validate:"required,notblank"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason"`
}

// leaveDays computes the span or writes a validation error.
func leaveDays(w http.ResponseWriter, start, end string) (int, bool) {
	days, err := model.LeaveDays(start, end)
	if err != nil {
		render.ValidationErrors(w, []render.FieldError{{
			Field:   "endDate",
			Message: "endDate must not be before startDate",
		}})
		return 0, false
	}
	return days, true
}

// Create handles POST /api/leaves. Agents request leave for themselves;
// managers may file for a user of their office.
func (h *LeaveHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLeaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	days, ok := leaveDays(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	actor := currentUser(r)
	subject := actor
	if req.UserID != "" && req.UserID != actor.ID && actor.Role != model.RoleAgent {
		var target model.User
		if err := h.DB.WithContext(r.Context()).First(&target, "id = ?", req.UserID).Error; err != nil {
			h.fail(w, r, err, "User not found")
			return
		}
		subject = &target
	}

	l := model.Leave{
		UserID:          subject.ID,
		UserName:        displayName(subject),
		RequestedByID:   actor.ID,
		RequestedByName: displayName(actor),
		Office:          subject.Office,
		LeaveType:       req.LeaveType,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Days:            days,
		Reason:          req.Reason,
		Status:          model.LeavePending,
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Leave, &l) {
		return
	}
	if err := h.DB.WithContext(r.Context()).Create(&l).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionCreate, model.ResourceLeave, l.ID, "Requested "+l.LeaveType+" leave for "+l.UserName)
	h.Notify.NotifyLeaveRequested(r.Context(), &l)
	render.JSON(w, http.StatusCreated, &l)
}

type updateLeaveRequest struct {
	LeaveType *string `json:"leaveType" validate:"omitempty,notblank"`
	StartDate *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Reason    *string `json:"reason"`
}

// Update handles PUT /api/leaves/{id}. Decided leaves are immutable.
func (h *LeaveHandler) Update(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateLeaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if l.Status != model.LeavePending {
		render.Error(w, http.StatusBadRequest, "Only pending leave requests can be updated")
		return
	}
	setIf(&l.LeaveType, req.LeaveType)
	setIf(&l.StartDate, req.StartDate)
	setIf(&l.EndDate, req.EndDate)
	setIf(&l.Reason, req.Reason)
	if l.Days, ok = leaveDays(w, l.StartDate, l.EndDate); !ok {
		return
	}

	l.UpdatedAt = time.Now().UTC()

	// The pending check above is advisory; only the guarded write decides.
	res := h.DB.WithContext(r.Context()).Model(&model.Leave{}).
		Where("id = ? AND status = ?", l.ID, model.LeavePending).
		Updates(map[string]any{
			"leave_type": l.LeaveType,
			"start_date": l.StartDate,
			"end_date":   l.EndDate,
			"reason":     l.Reason,
			"days":       l.Days,
			"updated_at": l.UpdatedAt,
		})
	if res.Error != nil {
		h.fail(w, r, res.Error, "")
		return
	}
	if res.RowsAffected == 0 {
		render.Error(w, http.StatusBadRequest, "Only pending leave requests can be updated")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceLeave, l.ID, "Updated leave request of "+l.UserName)
	render.JSON(w, http.StatusOK, l)
}

// Delete handles DELETE /api/leaves/{id}. Only managers may delete a leave
// that has already been decided.
func (h *LeaveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	l, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	agent := currentUser(r).Role == model.RoleAgent
	if l.Status != model.LeavePending && agent {
		render.Error(w, http.StatusBadRequest, "Only pending leave requests can be cancelled")
		return
	}
	tx := h.DB.WithContext(r.Context())
	if agent {
		tx = tx.Where("status = ?", model.LeavePending)
	}
	res := tx.Delete(l)
	if res.Error != nil {
		h.fail(w, r, res.Error, "")
		return
	}
	if res.RowsAffected == 0 {
		if agent {
			render.Error(w, http.StatusBadRequest, "Only pending leave requests can be cancelled")
			return
		}
		render.Error(w, http.StatusNotFound, "Leave not found")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceLeave, l.ID, "Deleted leave request of "+l.UserName)
	render.Message(w, http.StatusOK, "Leave deleted successfully")
}

type rejectLeaveRequest struct {
	RejectionReason string `json:"rejectionReason"`
}

// Approve handles PUT /api/leaves/{id}/approve.
func (h *LeaveHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, model.LeaveApproved, "")
}

// Reject handles PUT /api/leaves/{id}/reject.
func (h *LeaveHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectLeaveRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	h.decide(w, r, model.LeaveRejected, req.RejectionReason)
}

// decide moves a pending leave to status. Managers are limited to their own
// office by the leave policy.
func (h *LeaveHandler) decide(w http.ResponseWriter, r *http.Request, status, reason string) {
	l, ok := h.load(w, r, policy.ActionApprove)
	if !ok {
		return
	}
	if l.Status != model.LeavePending {
		render.Error(w, http.StatusBadRequest, "Leave request has already been "+l.Status)
		return
	}
	actor := currentUser(r)
	now := time.Now().UTC()
	l.Status = status
	l.ApprovedByID = &actor.ID
	l.ApprovedByName = displayName(actor)
	l.ApprovedAt = &now
	l.RejectionReason = reason

	res := h.DB.WithContext(r.Context()).Model(&model.Leave{}).
		Where("id = ? AND status = ?", l.ID, model.LeavePending).
		Updates(map[string]any{
			"status":           l.Status,
			"approved_by_id":   l.ApprovedByID,
			"approved_by_name": l.ApprovedByName,
			"approved_at":      l.ApprovedAt,
			"rejection_reason": l.RejectionReason,
			"updated_at":       now,
		})
	if res.Error != nil {
		h.fail(w, r, res.Error, "")
		return
	}
	if res.RowsAffected == 0 {
		render.Error(w, http.StatusBadRequest, "Leave request has already been processed")
		return
	}
	l.UpdatedAt = now

	action, verb := model.ActionApprove, "Approved"
	if status == model.LeaveRejected {
		action, verb = model.ActionReject, "Rejected"
		h.Notify.NotifyLeaveRejected(r.Context(), l)
	} else {
		h.Notify.NotifyLeaveApproved(r.Context(), l)
	}
	h.audit(r, action, model.ResourceLeave, l.ID, verb+" leave request of "+l.UserName)
	h.sendDecision(r, l)
	render.JSON(w, http.StatusOK, l)
}

func (h *LeaveHandler) sendDecision(r *http.Request, l *model.Leave) {
	var u model.User
	if err := h.DB.WithContext(r.Context()).First(&u, "id = ?", l.UserID).Error; err != nil {
		h.Log.WarnContext(r.Context(), "leave email: load user", "user_id", l.UserID, "err", err)
		return
	}
	msg, err := mail.LeaveStatus(u.Email, mail.LeaveStatusData{
		FullName:        displayName(&u),
		Status:          l.Status,
		LeaveType:       l.LeaveType,
		StartDate:       l.StartDate,
		EndDate:         l.EndDate,
		Days:            l.Days,
		ApprovedBy:      l.ApprovedByName,
		RejectionReason: l.RejectionReason,
	})
	if err == nil {
		err = h.Queue.EnqueueEmail(r.Context(), msg)
	}
	if err != nil {
		h.Log.WarnContext(r.Context(), "leave email", "leave_id", l.ID, "err", err)
	}
}
