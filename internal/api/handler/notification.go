package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/model"
	"github.com/dnothi/dnothi/internal/notify"
	"github.com/dnothi/dnothi/internal/policy"
)

// NotificationHandler serves /api/notifications: the SSE stream and the
// stored notification history.
type NotificationHandler struct {
	Deps
	hub       *notify.Hub
	heartbeat time.Duration
}

// NewNotificationHandler creates a NotificationHandler. A heartbeat comment
// is written to every stream each interval.
func NewNotificationHandler(d Deps, hub *notify.Hub, heartbeat time.Duration) *NotificationHandler {
	return &NotificationHandler{Deps: d, hub: hub, heartbeat: heartbeat}
}

// Index handles GET /api/notifications: an event stream when the client
// asks for text/event-stream, the stored history otherwise.
func (h *NotificationHandler) Index(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.Stream(w, r)
		return
	}
	h.List(w, r)
}

// Stream handles GET /api/notifications/stream. The stream always belongs
// to the authenticated user; a userId query naming anyone else is refused.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	if id := r.URL.Query().Get("userId"); id != "" && id != u.ID {
		render.Error(w, http.StatusForbidden, "Cannot subscribe to another user's notifications")
		return
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would cut long-lived streams.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.Log.DebugContext(r.Context(), "sse: clear write deadline", "err", err)
	}
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	conn := notify.NewConn(u.ID, u.Role, u.Office, w, rc.Flush)
	hello, err := notify.Event{
		Type:      "connected",
		Message:   "Connected to notification stream",
		Data:      map[string]any{"userId": u.ID},
		Timestamp: time.Now().UTC(),
	}.Frame()
	if err != nil {
		h.Log.ErrorContext(r.Context(), "sse: encode hello", "err", err)
		return
	}
	if err := conn.Send(hello); err != nil {
		return
	}
	// unregister blocks until no Deliver is writing to w.
	unregister := h.hub.Register(conn)
	defer unregister()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := conn.Send(notify.HeartbeatFrame); err != nil {
				return
			}
		}
	}
}

type notificationListQuery struct {
	pageQuery
	UnreadOnly bool   `schema:"unreadOnly"`
	Type       string `schema:"type"`
}

// List handles GET /api/notifications for non-streaming clients.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	var q notificationListQuery
	if !decodeQuery(w, r, &q) {
		return
	}
	db := h.DB.WithContext(r.Context()).Model(&model.Notification{}).
		Scopes(policy.Scope(currentUser(r), policy.Notification))
	if q.UnreadOnly {
		db = db.Where("is_read = ?", false)
	}
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	rows, page, err := paginate[model.Notification](db, q.pageQuery, "created_at DESC")
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.List(w, http.StatusOK, rows, page)
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	var n int64
	err := h.DB.WithContext(r.Context()).Model(&model.Notification{}).
		Scopes(policy.Scope(currentUser(r), policy.Notification)).
		Where("is_read = ?", false).
		Count(&n).Error
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.JSON(w, http.StatusOK, map[string]int64{"count": n})
}

// MarkRead handles PUT /api/notifications/{id}/read. Notifications the
// caller cannot see are reported as missing.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var n model.Notification
	err := h.DB.WithContext(r.Context()).First(&n, "id = ?", r.PathValue("id")).Error
	if err == nil && !h.Gate.Can(r.Context(), currentUser(r), policy.ActionUpdate, policy.Notification, &n) {
		render.Error(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		h.fail(w, r, err, "Notification not found")
		return
	}
	if !n.IsRead {
		now := time.Now().UTC()
		n.IsRead, n.ReadAt = true, &now
		err := h.DB.WithContext(r.Context()).Model(&n).
			Updates(map[string]any{"is_read": true, "read_at": now}).Error
		if err != nil {
			h.fail(w, r, err, "")
			return
		}
	}
	render.JSON(w, http.StatusOK, &n)
}

// markAllRead flags every unread notification visible to the caller.
func (h *NotificationHandler) markAllRead(r *http.Request) (int64, error) {
	res := h.DB.WithContext(r.Context()).Model(&model.Notification{}).
		Scopes(policy.Scope(currentUser(r), policy.Notification)).
		Where("is_read = ?", false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.markAllRead(r)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.JSON(w, http.StatusOK, map[string]any{"message": "All notifications marked as read", "updated": n})
}

// Clear handles DELETE /api/notifications/clear. Rows are kept and only
// marked read.
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.markAllRead(r)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	render.JSON(w, http.StatusOK, map[string]any{"message": "Notifications cleared", "cleared": n})
}
