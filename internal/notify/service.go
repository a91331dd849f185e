package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dnothi/dnothi/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

// Service persists notifications and publishes them to connected clients.
// Every method swallows and logs its own failures.
type Service struct {
	db      *gorm.DB
	broker  Broker
	log     *slog.Logger
	metrics *metrics
}

// NewService creates a Service.
func NewService(db *gorm.DB, broker Broker, log *slog.Logger) *Service {
	return &Service{db: db, broker: broker, log: log, metrics: newMetrics()}
}

// Send stores one Notification row per selector in target and publishes ev.
func (s *Service) Send(ctx context.Context, target Target, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.ErrorContext(ctx, "notify: panic", "type", ev.Type, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
		}
	}()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if err := s.store(ctx, target, ev); err != nil {
		s.log.WarnContext(ctx, "notify: store failed", "type", ev.Type, "err", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.WarnContext(ctx, "notify: encode failed", "type", ev.Type, "err", err)
		return
	}
	if err := s.broker.Publish(ctx, Envelope{Target: target, Event: payload}); err != nil {
		s.log.WarnContext(ctx, "notify: publish failed", "type", ev.Type, "err", err)
		return
	}
	s.metrics.published.Add(ctx, 1, metric.WithAttributes(attribute.String("type", ev.Type)))
}

func (s *Service) store(ctx context.Context, target Target, ev Event) error {
	rows := make([]model.Notification, 0, len(target))
	for _, sel := range target {
		rows = append(rows, model.Notification{
			Type:            ev.Type,
			Message:         ev.Message,
			UserID:          optional(sel.UserID),
			RecipientRole:   optional(sel.Role),
			RecipientOffice: optional(sel.Office),
			Data:            ev.Data,
			CreatedAt:       ev.Timestamp,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func event(typ, msg string, data map[string]any) Event {
	return Event{Type: typ, Message: msg, Data: data}
}

// --- Tasks: every connected user ---

func (s *Service) NotifyTaskCreated(ctx context.Context, t *model.Task) {
	s.Send(ctx, All(), event("task_created", fmt.Sprintf("New task created by %s", t.UserName), map[string]any{"task": t}))
}

func (s *Service) NotifyTaskUpdated(ctx context.Context, t *model.Task) {
	s.Send(ctx, All(), event("task_updated", fmt.Sprintf("Task updated (%s)", t.Status), map[string]any{"task": t}))
}

func (s *Service) NotifyTaskDeleted(ctx context.Context, taskID string) {
	s.Send(ctx, All(), event("task_deleted", "Task deleted", map[string]any{"taskId": taskID}))
}

func (s *Service) NotifyTaskCommented(ctx context.Context, t *model.Task, c model.Comment) {
	s.Send(ctx, All(), event("task_commented", fmt.Sprintf("%s commented on a task", c.UserName),
		map[string]any{"taskId": t.ID, "comment": c}))
}

// --- Leaves ---

// NotifyLeaveRequested tells the approvers of the leave's office and every
// SystemAdmin.
func (s *Service) NotifyLeaveRequested(ctx context.Context, l *model.Leave) {
	target := append(Office(l.Office, model.RoleAdmin, model.RoleSupervisor), Roles(model.RoleSystemAdmin)...)
	s.Send(ctx, target, event("leave_requested",
		fmt.Sprintf("%s requested %s leave (%d days)", l.UserName, l.LeaveType, l.Days), map[string]any{"leave": l}))
}

// NotifyLeaveApproved tells the person on leave and, if different, who
// filed it.
func (s *Service) NotifyLeaveApproved(ctx context.Context, l *model.Leave) {
	s.Send(ctx, Users(l.UserID, l.RequestedByID), event("leave_approved",
		fmt.Sprintf("Your leave from %s to %s was approved", l.StartDate, l.EndDate), map[string]any{"leave": l}))
}

// NotifyLeaveRejected mirrors NotifyLeaveApproved.
func (s *Service) NotifyLeaveRejected(ctx context.Context, l *model.Leave) {
	s.Send(ctx, Users(l.UserID, l.RequestedByID), event("leave_rejected",
		fmt.Sprintf("Your leave from %s to %s was rejected", l.StartDate, l.EndDate), map[string]any{"leave": l}))
}

// --- Users: administrators ---

var adminRoles = []string{model.RoleAdmin, model.RoleSystemAdmin}

func (s *Service) NotifyUserCreated(ctx context.Context, u *model.User) {
	s.Send(ctx, Roles(adminRoles...), event("user_created", fmt.Sprintf("User %s created", u.Username), map[string]any{"user": u}))
}

func (s *Service) NotifyUserUpdated(ctx context.Context, u *model.User) {
	s.Send(ctx, Roles(adminRoles...), event("user_updated", fmt.Sprintf("User %s updated", u.Username), map[string]any{"user": u}))
}

func (s *Service) NotifyUserDeleted(ctx context.Context, userID, username string) {
	s.Send(ctx, Roles(adminRoles...), event("user_deleted", fmt.Sprintf("User %s deleted", username),
		map[string]any{"userId": userID}))
}

// --- Dropdowns: every connected user ---

func (s *Service) NotifyDropdownCreated(ctx context.Context, d *model.Dropdown) {
	s.Send(ctx, All(), event("dropdown_created", fmt.Sprintf("%s %q added", d.Type, d.Value), map[string]any{"dropdown": d}))
}

func (s *Service) NotifyDropdownUpdated(ctx context.Context, d *model.Dropdown) {
	s.Send(ctx, All(), event("dropdown_updated", fmt.Sprintf("%s %q updated", d.Type, d.Value), map[string]any{"dropdown": d}))
}

func (s *Service) NotifyDropdownDeleted(ctx context.Context, d *model.Dropdown) {
	s.Send(ctx, All(), event("dropdown_deleted", fmt.Sprintf("%s %q deleted", d.Type, d.Value),
		map[string]any{"dropdownId": d.ID, "type": d.Type}))
}

func (s *Service) NotifyDropdownsBulkCreated(ctx context.Context, rows []model.Dropdown) {
	s.Send(ctx, All(), event("dropdown_bulk_created", fmt.Sprintf("%d dropdown values added", len(rows)),
		map[string]any{"count": len(rows)}))
}

// --- Permission templates: administrators ---

func (s *Service) NotifyTemplateCreated(ctx context.Context, p *model.PermissionTemplate) {
	s.Send(ctx, Roles(adminRoles...), event("template_created", fmt.Sprintf("Permission template %q created", p.Name),
		map[string]any{"template": p}))
}

func (s *Service) NotifyTemplateUpdated(ctx context.Context, p *model.PermissionTemplate) {
	s.Send(ctx, Roles(adminRoles...), event("template_updated", fmt.Sprintf("Permission template %q updated", p.Name),
		map[string]any{"template": p}))
}

func (s *Service) NotifyTemplateDeleted(ctx context.Context, p *model.PermissionTemplate) {
	s.Send(ctx, Roles(adminRoles...), event("template_deleted", fmt.Sprintf("Permission template %q deleted", p.Name),
		map[string]any{"templateId": p.ID}))
}

// --- Meetings: participants, creator and managers ---

func (s *Service) NotifyMeetingCreated(ctx context.Context, m *model.Meeting) {
	s.notifyMeeting(ctx, m, "meeting_created", fmt.Sprintf("New meeting: %s", m.Subject))
}

func (s *Service) NotifyMeetingUpdated(ctx context.Context, m *model.Meeting) {
	s.notifyMeeting(ctx, m, "meeting_updated", fmt.Sprintf("Meeting updated: %s", m.Subject))
}

func (s *Service) NotifyMeetingDeleted(ctx context.Context, m *model.Meeting) {
	s.notifyMeeting(ctx, m, "meeting_deleted", fmt.Sprintf("Meeting cancelled: %s", m.Subject))
}

func (s *Service) notifyMeeting(ctx context.Context, m *model.Meeting, typ, msg string) {
	ev := event(typ, msg, map[string]any{"meeting": m})
	ids, err := s.MeetingRecipients(ctx, m)
	if err != nil {
		s.log.WarnContext(ctx, "notify: resolve meeting recipients, broadcasting", "meeting_id", m.ID, "err", err)
		s.Send(ctx, All(), ev)
		return
	}
	s.Send(ctx, Users(ids...), ev)
}

// MeetingRecipients returns participants, the creator and every Admin,
// SystemAdmin and Supervisor, without duplicates.
func (s *Service) MeetingRecipients(ctx context.Context, m *model.Meeting) ([]string, error) {
	var managers []string
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("role IN ?", []string{model.RoleAdmin, model.RoleSystemAdmin, model.RoleSupervisor}).
		Pluck("id", &managers).Error; err != nil {
		return nil, fmt.Errorf("load managers: %w", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, p := range m.Participants {
		add(p.ID)
	}
	for _, id := range m.SelectedUserIDs {
		add(id)
	}
	add(m.CreatedByID)
	for _, id := range managers {
		add(id)
	}
	return ids, nil
}

// --- Collaborations: the collaboration's office ---

func (s *Service) NotifyCollaborationCreated(ctx context.Context, c *model.Collaboration) {
	s.Send(ctx, Office(c.Office), event("collaboration_created", fmt.Sprintf("New collaboration: %s", c.Title),
		map[string]any{"collaboration": c}))
}

func (s *Service) NotifyCollaborationUpdated(ctx context.Context, c *model.Collaboration) {
	s.Send(ctx, Office(c.Office), event("collaboration_updated", fmt.Sprintf("Collaboration updated: %s", c.Title),
		map[string]any{"collaboration": c}))
}

func (s *Service) NotifyCollaborationDeleted(ctx context.Context, c *model.Collaboration) {
	s.Send(ctx, Office(c.Office), event("collaboration_deleted", fmt.Sprintf("Collaboration removed: %s", c.Title),
		map[string]any{"collaborationId": c.ID}))
}

// --- Errors and warnings: one user, or everyone ---

func (s *Service) NotifyError(ctx context.Context, userID, msg string, data map[string]any) {
	s.Send(ctx, userOrAll(userID), event("error", msg, data))
}

func (s *Service) NotifyWarning(ctx context.Context, userID, msg string, data map[string]any) {
	s.Send(ctx, userOrAll(userID), event("warning", msg, data))
}

func userOrAll(userID string) Target {
	if userID == "" {
		return All()
	}
	return Users(userID)
}
