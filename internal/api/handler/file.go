package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/policy"
	"github.com/dnothi/dnothi/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// opener is implemented by stores whose blobs the API serves itself.
type opener interface {
	Open(location string) (*os.File, error)
}

// FileHandler serves /api/files.
type FileHandler struct {
	Deps
	store        storage.Store
	maxSize      int64
	defaultQuota int64
}

// NewFileHandler creates a FileHandler. Uploads larger than maxSize are
// rejected; users whose quota is unset get defaultQuota.
func NewFileHandler(d Deps, store storage.Store, maxSize, defaultQuota int64) *FileHandler {
	return &FileHandler{Deps: d, store: store, maxSize: maxSize, defaultQuota: defaultQuota}
}

func (h *FileHandler) quota(u *model.User) int64 {
	if u.StorageQuota > 0 {
		return u.StorageQuota
	}
	return h.defaultQuota
}

// Upload handles POST /api/files/upload (multipart field "file", optional
// "taskId"). Storage is reserved against the caller's quota before the blob
// is written.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			render.Error(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		render.Error(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	src, header, err := r.FormFile("file")
	if err != nil {
		render.Error(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer src.Close()
	if header.Size > h.maxSize {
		render.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte limit", h.maxSize))
		return
	}

	actor := currentUser(r)
	var taskID *string
	if id := r.FormValue("taskId"); id != "" {
		var t model.Task
		if err := h.DB.WithContext(r.Context()).First(&t, "id = ?", id).Error; err != nil {
			h.fail(w, r, err, "Task not found")
			return
		}
		if !h.authorize(w, r, policy.ActionUpdate, policy.Task, &t) {
			return
		}
		taskID = &t.ID
	}

	// Reserve quota atomically so concurrent uploads cannot overshoot it.
	res := h.DB.WithContext(r.Context()).Model(&model.User{}).
		Where("id = ? AND used_storage + ? <= ?", actor.ID, header.Size, h.quota(actor)).
		UpdateColumn("used_storage", gorm.Expr("used_storage + ?", header.Size))
	if res.Error != nil {
		h.fail(w, r, res.Error, "")
		return
	}
	if res.RowsAffected == 0 {
		render.Error(w, http.StatusRequestEntityTooLarge, "Storage quota exceeded")
		return
	}
	release := func() {
		if err := h.adjustUsage(r, actor.ID, -header.Size); err != nil {
			h.Log.WarnContext(r.Context(), "upload: release quota", "user_id", actor.ID, "err", err)
		}
	}

	mimeType, body, err := storage.DetectMIME(src)
	if err != nil {
		release()
		h.fail(w, r, err, "")
		return
	}
	obj, err := h.store.Save(r.Context(), header.Filename, body)
	if err != nil {
		release()
		h.fail(w, r, err, "")
		return
	}

	f := model.File{
		ID:           uuid.NewString(),
		UserID:       actor.ID,
		Office:       actor.Office,
		OriginalName: header.Filename,
		StoredName:   obj.StoredName,
		Location:     obj.Location,
		URL:          obj.URL,
		Backend:      obj.Backend,
		Size:         header.Size,
		MimeType:     mimeType,
		TaskID:       taskID,
	}
	if f.URL == "" {
		f.URL = "/api/files/" + f.ID + "/download"
	}
	if err := h.DB.WithContext(r.Context()).Create(&f).Error; err != nil {
		release()
		if delErr := h.store.Delete(r.Context(), obj.Location); delErr != nil {
			h.Log.WarnContext(r.Context(), "upload: remove orphan blob", "location", obj.Location, "err", delErr)
		}
		h.fail(w, r, err, "")
		return
	}
	h.audit(r, model.ActionUpload, model.ResourceFile, f.ID, "Uploaded "+f.OriginalName)
	render.JSON(w, http.StatusCreated, &f)
}

func (h *FileHandler) adjustUsage(r *http.Request, userID string, delta int64) error {
	return h.DB.WithContext(r.Context()).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("used_storage", gorm.Expr("CASE WHEN used_storage + ? < 0 THEN 0 ELSE used_storage + ? END", delta, delta)).
		Error
}

type fileListQuery struct {
	pageQuery
	TaskID string `schema:"taskId"`
	UserID string `schema:"userId"`
}

// List handles GET /api/files.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	var q fileListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.File{}).
		Scopes(policy.Scope(currentUser(r), policy.File))
	if q.TaskID != "" {
		db = db.Where("task_id = ?", q.TaskID)
	}
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	files, page, err := paginate[model.File](db, q.pageQuery, "created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, files, page)
}

func (h *FileHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*model.File, bool) {
	var f model.File
	if err := h.DB.WithContext(r.Context()).First(&f, "id = ?", r.PathValue("id")).Error; err != nil {
		h.fail(w, r, err, "File not found")
		return nil, false
	}
	if !h.authorize(w, r, action, policy.File, &f) {
		return nil, false
	}
	return &f, true
}

// Get handles GET /api/files/{id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, f)
}

// Download handles GET /api/files/{id}/download. Remote blobs redirect to
// their public URL.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	f, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	local, isLocal := h.store.(opener)
	if f.Backend != storage.BackendLocal || !isLocal {
		http.Redirect(w, r, f.URL, http.StatusFound)
		return
	}
	blob, err := local.Open(f.Location)
	if errors.Is(err, storage.ErrNotFound) {
		render.Error(w, http.StatusNotFound, "File content not found")
		return
	}
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	defer blob.Close()

	if f.MimeType != "" {
		w.Header().Set("Content-Type", f.MimeType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.OriginalName}))
	http.ServeContent(w, r, f.OriginalName, f.CreatedAt, blob)
}

// Delete handles DELETE /api/files/{id}. The owner's usage is credited back.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	f, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(f).Error; err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := h.store.Delete(r.Context(), f.Location); err != nil {
		h.Log.WarnContext(r.Context(), "delete file: remove blob", "file_id", f.ID, "err", err)
	}
	if err := h.adjustUsage(r, f.UserID, -f.Size); err != nil {
		h.Log.WarnContext(r.Context(), "delete file: credit quota", "user_id", f.UserID, "err", err)
	}
	h.audit(r, model.ActionDelete, model.ResourceFile, f.ID, "Deleted "+f.OriginalName)
	render.Message(w, http.StatusOK, "File deleted successfully")
}
