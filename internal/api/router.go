// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"log/slog"
	"net/http"

	"github.com/dnothi/dnothi/internal/api/handler"
	"github.com/dnothi/dnothi/internal/api/middleware"
	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/health"
	"github.com/dnothi/dnothi/internal/model"
)

// Handlers bundles every route handler.
type Handlers struct {
	Health         *health.Handler
	Auth           *handler.AuthHandler
	Users          *handler.UserHandler
	Tasks          *handler.TaskHandler
	Leaves         *handler.LeaveHandler
	Meetings       *handler.MeetingHandler
	Collaborations *handler.CollaborationHandler
	Dropdowns      *handler.DropdownHandler
	Permissions    *handler.PermissionHandler
	Files          *handler.FileHandler
	Audit          *handler.AuditHandler
	Logs           *handler.LogHandler
	Notifications  *handler.NotificationHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

var (
	admins    = []string{model.RoleSystemAdmin, model.RoleAdmin}
	approvers = []string{model.RoleSystemAdmin, model.RoleAdmin, model.RoleSupervisor}
	sysAdmin  = []string{model.RoleSystemAdmin}
)

// RegisterRoutes registers all application routes on mux. authn is the
// Authenticate middleware; routes guarded by a role list also pass
// middleware.Authorize.
func RegisterRoutes(mux *http.ServeMux, h *Handlers, authn func(http.Handler) http.Handler) {
	protect := func(f http.HandlerFunc, roles ...string) http.Handler {
		var next http.Handler = f
		if len(roles) > 0 {
			next = middleware.Authorize(roles...)(next)
		}
		return authn(next)
	}

	// Public endpoints
	mux.HandleFunc("GET /api/health", h.Health.ServeHealth)
	mux.HandleFunc("GET /api/ready", h.Health.ServeReady)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", h.Auth.Refresh)
	mux.HandleFunc("POST /api/auth/forgot-password", h.Auth.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", h.Auth.ResetPassword)
	mux.HandleFunc("POST /api/logs", h.Logs.Create)

	// Auth
	mux.Handle("POST /api/auth/logout", protect(h.Auth.Logout))
	mux.Handle("GET /api/auth/me", protect(h.Auth.Me))
	mux.Handle("PUT /api/auth/me", protect(h.Auth.UpdateMe))
	mux.Handle("PUT /api/auth/change-password", protect(h.Auth.ChangePassword))

	// Users
	mux.Handle("GET /api/users", protect(h.Users.List))
	mux.Handle("POST /api/users", protect(h.Users.Create, admins...))
	mux.Handle("GET /api/users/{id}", protect(h.Users.Get))
	mux.Handle("PUT /api/users/{id}", protect(h.Users.Update, admins...))
	mux.Handle("DELETE /api/users/{id}", protect(h.Users.Delete, admins...))
	mux.Handle("PUT /api/users/{id}/status", protect(h.Users.SetStatus, admins...))
	mux.Handle("PUT /api/users/{id}/password", protect(h.Users.SetPassword, admins...))

	// Tasks
	mux.Handle("GET /api/tasks", protect(h.Tasks.List))
	mux.Handle("POST /api/tasks", protect(h.Tasks.Create))
	mux.Handle("GET /api/tasks/stats", protect(h.Tasks.Stats))
	mux.Handle("GET /api/tasks/{id}", protect(h.Tasks.Get))
	mux.Handle("PUT /api/tasks/{id}", protect(h.Tasks.Update))
	mux.Handle("DELETE /api/tasks/{id}", protect(h.Tasks.Delete))
	mux.Handle("POST /api/tasks/{id}/comments", protect(h.Tasks.AddComment))

	// Leaves
	mux.Handle("GET /api/leaves", protect(h.Leaves.List))
	mux.Handle("POST /api/leaves", protect(h.Leaves.Create))
	mux.Handle("GET /api/leaves/{id}", protect(h.Leaves.Get))
	mux.Handle("PUT /api/leaves/{id}", protect(h.Leaves.Update))
	mux.Handle("DELETE /api/leaves/{id}", protect(h.Leaves.Delete))
	mux.Handle("PUT /api/leaves/{id}/approve", protect(h.Leaves.Approve, approvers...))
	mux.Handle("PUT /api/leaves/{id}/reject", protect(h.Leaves.Reject, approvers...))

	// Meetings
	mux.Handle("GET /api/meetings", protect(h.Meetings.List))
	mux.Handle("POST /api/meetings", protect(h.Meetings.Create))
	mux.Handle("GET /api/meetings/{id}", protect(h.Meetings.Get))
	mux.Handle("PUT /api/meetings/{id}", protect(h.Meetings.Update))
	mux.Handle("DELETE /api/meetings/{id}", protect(h.Meetings.Delete))

	// Collaborations
	mux.Handle("GET /api/collaborations", protect(h.Collaborations.List))
	mux.Handle("POST /api/collaborations", protect(h.Collaborations.Create))
	mux.Handle("GET /api/collaborations/{id}", protect(h.Collaborations.Get))
	mux.Handle("PUT /api/collaborations/{id}", protect(h.Collaborations.Update))
	mux.Handle("DELETE /api/collaborations/{id}", protect(h.Collaborations.Delete))

	// Dropdowns
	mux.Handle("GET /api/dropdowns", protect(h.Dropdowns.List))
	mux.Handle("POST /api/dropdowns", protect(h.Dropdowns.Create, admins...))
	mux.Handle("POST /api/dropdowns/bulk", protect(h.Dropdowns.Bulk, admins...))
	mux.Handle("GET /api/dropdowns/{id}", protect(h.Dropdowns.Get))
	mux.Handle("PUT /api/dropdowns/{id}", protect(h.Dropdowns.Update, admins...))
	mux.Handle("DELETE /api/dropdowns/{id}", protect(h.Dropdowns.Delete, admins...))

	// Permission templates
	mux.Handle("GET /api/permissions", protect(h.Permissions.List, admins...))
	mux.Handle("POST /api/permissions", protect(h.Permissions.Create, sysAdmin...))
	mux.Handle("GET /api/permissions/{id}", protect(h.Permissions.Get, admins...))
	mux.Handle("PUT /api/permissions/{id}", protect(h.Permissions.Update, sysAdmin...))
	mux.Handle("DELETE /api/permissions/{id}", protect(h.Permissions.Delete, sysAdmin...))

	// Files
	mux.Handle("POST /api/files/upload", protect(h.Files.Upload))
	mux.Handle("GET /api/files", protect(h.Files.List))
	mux.Handle("GET /api/files/{id}", protect(h.Files.Get))
	mux.Handle("GET /api/files/{id}/download", protect(h.Files.Download))
	mux.Handle("DELETE /api/files/{id}", protect(h.Files.Delete))

	// Audit
	mux.Handle("GET /api/audit", protect(h.Audit.List, admins...))
	mux.Handle("GET /api/audit/{id}", protect(h.Audit.Get, admins...))

	// Notifications
	mux.Handle("GET /api/notifications", protect(h.Notifications.Index))
	mux.Handle("GET /api/notifications/stream", protect(h.Notifications.Stream))
	mux.Handle("GET /api/notifications/unread-count", protect(h.Notifications.UnreadCount))
	mux.Handle("PUT /api/notifications/read-all", protect(h.Notifications.MarkAllRead))
	mux.Handle("PUT /api/notifications/{id}/read", protect(h.Notifications.MarkRead))
	mux.Handle("DELETE /api/notifications/clear", protect(h.Notifications.Clear))

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		render.Error(w, http.StatusNotFound, "Route not found")
	})
}

// Wrap applies the process-wide middleware: panic recovery outermost, then
// request logging, then CORS.
func Wrap(mux http.Handler, log *slog.Logger, production bool, origins []string) http.Handler {
	return middleware.Chain(mux,
		middleware.Recover(log, production),
		middleware.Logging(log),
		middleware.CORS(origins),
	)
}
