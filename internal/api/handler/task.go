package handler

import (
	"net/http"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskHandler serves /api/tasks.
type TaskHandler struct{ Deps }

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(d Deps) *TaskHandler { return &TaskHandler{Deps: d} }

type taskFilter struct {
	Status    string `schema:"status" validate:"omitempty,oneof=Pending 'In Progress' Completed"`
	Category  string `schema:"category"`
	Source    string `schema:"source"`
	Office    string `schema:"office"`
	UserID    string `schema:"userId"`
	StartDate string `schema:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `schema:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Search    string `schema:"search"`
}

func (f taskFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Source != "" {
		db = db.Where("source = ?", f.Source)
	}
	if f.Office != "" {
		db = db.Where("office = ?", f.Office)
	}
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	if f.StartDate != "" {
		db = db.Where("date >= ?", f.StartDate)
	}
	if f.EndDate != "" {
		db = db.Where("date <= ?", f.EndDate)
	}
	if f.Search != "" {
		s := like(f.Search)
		db = db.Where("LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(user_name) LIKE ? ESCAPE '\\' OR LOWER(service) LIKE ? ESCAPE '\\'", s, s, s)
	}
	return db
}

type taskListQuery struct {
	pageQuery
	taskFilter
}

// List handles GET /api/tasks. Agents see their own tasks, Admins and
// Supervisors their office's, SystemAdmins everything.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var q taskListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.Task{}).
		Scopes(policy.Scope(currentUser(r), policy.Task), q.taskFilter.apply)
	tasks, page, err := paginate[model.Task](db, q.pageQuery, "date DESC, created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, tasks, page)
}

type countRow struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type taskStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"byStatus"`
	ByCategory []countRow       `json:"byCategory"`
	BySource   []countRow       `json:"bySource"`
}

// Stats handles GET /api/tasks/stats over the same scope and filters as
// List.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var f taskFilter
	if !decodeQuery(w, r, &f) {
		return
	}
	base := h.DB.WithContext(r.Context()).Model(&model.Task{}).
		Scopes(policy.Scope(currentUser(r), policy.Task), f.apply)

	stats := taskStats{ByStatus: map[string]int64{
		model.TaskPending:    0,
		model.TaskInProgress: 0,
		model.TaskCompleted:  0,
	}}
	var byStatus []countRow
	if err := base.Session(&gorm.Session{}).Select("status AS name, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	for _, row := range byStatus {
		stats.ByStatus[row.Name] = row.Count
		stats.Total += row.Count
	}
	for _, g := range []struct {
		col string
		dst *[]countRow
	}{{"category", &stats.ByCategory}, {"source", &stats.BySource}} {
		err := base.Session(&gorm.Session{}).
			Select(g.col + " AS name, COUNT(*) AS count").
			Group(g.col).Order("count DESC").Scan(g.dst).Error
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
		if *g.dst == nil {
			*g.dst = []countRow{}
		}
	}
	render.JSON(w, http.StatusOK, stats)
}

func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.Task, bool) {
	var t model.Task
	if err := h.DB.WithContext(r.Context()).First(&t, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "Task not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.Task, &t) {
		return nil, false
	}
	return &t, true
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, t)
}

type createTaskRequest struct {
	UserID      string             `json:"userId"`
	Date        string             `json:"date" validate:"required,datetime=2006-01-02"`
	Source      string             `json:"source"`
	Category    string             `json:"category" validate:"required,notblank"`
	Service     string             `json:"service"`
	SubCategory string             `json:"subCategory"`
	Incident    string             `json:"incident"`
	Obligation  string             `json:"obligation"`
	Description string             `json:"description"`
	Status      string             `json:"status" validate:"omitempty,oneof=Pending 'In Progress' Completed"`
	Attachments []model.Attachment `json:"attachments"`
	Files       []string           `json:"files"`
}

// Create handles POST /api/tasks. Agents and Supervisors always file for
// themselves: any userId, userName or office in the body is ignored. Admins
// may file for a user of their office, SystemAdmins for anyone.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := currentUser(r)
	owner := actor
	if req.UserID != "" && req.UserID != actor.ID && !filesOnlyForSelf(actor) {
		var target model.User
		if err := h.DB.WithContext(r.Context()).First(&target, "id = ?", req.UserID).Error; err != nil {
			h.fail(w, r, err, "User not found")
			return
		}
		owner = &target
	}

	t := model.Task{
		UserID:      owner.ID,
		UserName:    displayName(owner),
		Office:      owner.Office,
		Date:        req.Date,
		Source:      req.Source,
		Category:    req.Category,
		Service:     req.Service,
		SubCategory: req.SubCategory,
		Incident:    req.Incident,
		Obligation:  req.Obligation,
		Description: req.Description,
		Status:      req.Status,
		Attachments: req.Attachments,
		Files:       req.Files,
	}
	if !h.authorize(w, r, policy.ActionCreate, policy.Task, &t) {
		return
	}
	if err := h.DB.WithContext(r.Context()).Create(&t).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionCreate, model.ResourceTask, t.ID, "Created task for "+t.UserName)
	h.Notify.NotifyTaskCreated(r.Context(), &t)
	render.JSON(w, http.StatusCreated, &t)
}

type updateTaskRequest struct {
	Date        *string             `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Source      *string             `json:"source"`
	Category    *string             `json:"category" validate:"omitempty,notblank"`
	Service     *string             `json:"service"`
	SubCategory *string             `json:"subCategory"`
	Incident    *string             `json:"incident"`
	Obligation  *string             `json:"obligation"`
	Description *string             `json:"description"`
	Status      *string             `json:"status" validate:"omitempty,oneof=Pending 'In Progress' Completed"`
	Attachments *[]model.Attachment `json:"attachments"`
	Files       *[]string           `json:"files"`
}

// Update handles PUT /api/tasks/{id}. Ownership fields never change.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	setIf(&t.Date, req.Date)
	setIf(&t.Source, req.Source)
	setIf(&t.Category, req.Category)
	setIf(&t.Service, req.Service)
	setIf(&t.SubCategory, req.SubCategory)
	setIf(&t.Incident, req.Incident)
	setIf(&t.Obligation, req.Obligation)
	setIf(&t.Description, req.Description)
	setIf(&t.Status, req.Status)
	setIf(&t.Attachments, req.Attachments)
	if req.Files != nil {
		t.Files = model.StringSlice(*req.Files)
	}

	if err := h.DB.WithContext(r.Context()).Omit("Comments").Save(t).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceTask, t.ID, "Updated task")
	h.Notify.NotifyTaskUpdated(r.Context(), t)
	render.JSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/tasks/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(t).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionDelete, model.ResourceTask, t.ID, "Deleted task of "+t.UserName)
	h.Notify.NotifyTaskDeleted(r.Context(), t.ID)
	render.Message(w, http.StatusOK, "Task deleted successfully")
}

type commentRequest struct {
	Text string `json:"text" validate:"required,notblank"`
}

// AddComment handles POST /api/tasks/{id}/comments.
func (h *TaskHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, policy.ActionComment)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := currentUser(r)
	c := model.NewComment(actor.ID, displayName(actor), req.Text)
	// Re-read under FOR UPDATE so concurrent comments append rather than
	// overwrite. SQLite drops the clause; its single connection already
	// serialises the transaction.
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var fresh model.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&fresh, "id = ?", t.ID).Error; err != nil {
			return err
		}
		fresh.Comments = append(fresh.Comments, c)
		if err := tx.Model(&fresh).Select("Comments", "UpdatedAt").Updates(&fresh).Error; err != nil {
			return err
		}
		*t = fresh
		return nil
	})
	if err != nil {
		h.fail(w, r, err, "Task not found")
		return
	}
	h.audit(r, model.ActionUpdate, model.ResourceTask, t.ID, "Commented on task")
	h.Notify.NotifyTaskCommented(r.Context(), t, c)
	render.JSON(w, http.StatusCreated, t)
}
