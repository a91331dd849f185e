package handler

import (
	"net/http"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
	"gorm.io/gorm"
)

// MeetingHandler serves /api/meetings.
type MeetingHandler struct{ Deps }

// NewMeetingHandler creates a MeetingHandler.
func NewMeetingHandler(d Deps) *MeetingHandler { return &MeetingHandler{Deps: d} }

type meetingListQuery struct {
	pageQuery
	Date      string `schema:"date" validate:"omitempty,datetime=2006-01-02"`
	StartDate string `schema:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `schema:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Platform  string `schema:"platform"`
	Search    string `schema:"search"`
}

// List handles GET /api/meetings. Users see meetings they created or take
// part in; managers also see their office's.
func (h *MeetingHandler) List(w http.ResponseWriter, r *http.Request) {
	var q meetingListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.Meeting{}).
		Scopes(policy.Scope(currentUser(r), policy.Meeting)).
		Preload("Participants")
	if q.Date != "" {
		db = db.Where("date = ?", q.Date)
	}
	if q.StartDate != "" {
		db = db.Where("date >= ?", q.StartDate)
	}
	if q.EndDate != "" {
		db = db.Where("date <= ?", q.EndDate)
	}
	if q.Platform != "" {
		db = db.Where("platform = ?", q.Platform)
	}
	if q.Search != "" {
		s := like(q.Search)
		db = db.Where("LOWER(subject) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\'", s, s)
	}
	meetings, page, err := paginate[model.Meeting](db, q.pageQuery, "date DESC, start_time DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, meetings, page)
}

func (h *MeetingHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.Meeting, bool) {
	var m model.Meeting
	err := h.DB.WithContext(r.Context()).Preload("Participants").First(&m, "id = ?", r.PathValue("id")).Error
	if err != nil {
		h.fail(w, r, err, "Meeting not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.Meeting, &m) {
		return nil, false
	}
	return &m, true
}

// Get handles GET /api/meetings/{id}.
func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, m)
}

type meetingRequest struct {
	Subject         string   `json:"subject" validate:"required,notblank"`
	Platform        string   `json:"platform"`
	Location        string   `json:"location"`
	Date            string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string   `json:"startTime" validate:"omitempty,datetime=15:04"`
	Duration        int      `json:"duration" validate:"min=0"`
	Description     string   `json:"description"`
	Link            string   `json:"link" validate:"omitempty,url"`
	SelectedUserIDs []string `json:"selectedUserIds"`
}

// participants loads the users named by ids. Unknown ids are skipped.
func (h *MeetingHandler) participants(r *http.Request, ids []string) ([]model.User, error) {
	users := []model.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := h.DB.WithContext(r.Context()).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// Create handles POST /api/meetings.
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Meeting, nil) {
		return
	}
	users, err := h.participants(r, req.SelectedUserIDs)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	actor := currentUser(r)
	m := model.Meeting{
		CreatedByID:   actor.ID,
		CreatedByName: displayName(actor),
		Office:        actor.Office,
		Subject:       req.Subject,
		Platform:      req.Platform,
		Location:      req.Location,
		Date:          req.Date,
		StartTime:     req.StartTime,
		Duration:      req.Duration,
		Description:   req.Description,
		Link:          req.Link,
		Participants:  users,
	}
	// Participants already exist; only the join rows are written.
	err = h.DB.WithContext(r.Context()).Omit("Participants.*").Create(&m).Error
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	m.ProjectParticipants()
	h.audit(r, model.ActionCreate, model.ResourceMeeting, m.ID, "Scheduled meeting "+m.Subject)
	h.Notify.NotifyMeetingCreated(r.Context(), &m)
	render.JSON(w, http.StatusCreated, &m)
}

type updateMeetingRequest struct {
	Subject         *string   `json:"subject" validate:"omitempty,notblank"`
	Platform        *string   `json:"platform"`
	Location        *string   `json:"location"`
	Date            *string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime       *string   `json:"startTime" validate:"omitempty,datetime=15:04"`
	Duration        *int      `json:"duration" validate:"omitempty,min=0"`
	Description     *string   `json:"description"`
	Link            *string   `json:"link" validate:"omitempty,url"`
	SelectedUserIDs *[]string `json:"selectedUserIds"`
}

// Update handles PUT /api/meetings/{id}. When selectedUserIds is present
// the participant set is replaced.
func (h *MeetingHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateMeetingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	setIf(&m.Subject, req.Subject)
	setIf(&m.Platform, req.Platform)
	setIf(&m.Location, req.Location)
	setIf(&m.Date, req.Date)
	setIf(&m.StartTime, req.StartTime)
	setIf(&m.Duration, req.Duration)
	setIf(&m.Description, req.Description)
	setIf(&m.Link, req.Link)

	var users []model.User
	if req.SelectedUserIDs != nil {
		var err error
		if users, err = h.participants(r, *req.SelectedUserIDs); err != nil {
			h.fail(w, r, err, "")
			return
		}
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Save(m).Error; err != nil {
			return err
		}
		if req.SelectedUserIDs == nil {
			return nil
		}
		assoc := tx.Model(m).Omit("Participants.*").Association("Participants")
		if len(users) == 0 {
			return assoc.Clear()
		}
		return assoc.Replace(users)
	})
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	if req.SelectedUserIDs != nil {
		m.Participants = users
	}
	m.ProjectParticipants()
	h.audit(r, model.ActionUpdate, model.ResourceMeeting, m.ID, "Updated meeting "+m.Subject)
	h.Notify.NotifyMeetingUpdated(r.Context(), m)
	render.JSON(w, http.StatusOK, m)
}

// Delete handles DELETE /api/meetings/{id}. Participants are notified from
// the copy loaded before deletion.
func (h *MeetingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM meeting_users WHERE meeting_id = ?", m.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Meeting{}, "id = ?", m.ID).Error
	})
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceMeeting, m.ID, "Cancelled meeting "+m.Subject)
	h.Notify.NotifyMeetingDeleted(r.Context(), m)
	render.Message(w, http.StatusOK, "Meeting deleted successfully")
}
