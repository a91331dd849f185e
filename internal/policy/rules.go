package policy

import (
	"context"

	"github.com/dnothi/dnothi/internal/model"
)

func isSystemAdmin(u *model.User) bool { return u.Role == model.RoleSystemAdmin }

func isOfficeManager(u *model.User) bool {
	return u.Role == model.RoleAdmin || u.Role == model.RoleSupervisor
}

func sameOffice(u *model.User, office string) bool {
	return u.Office != "" && u.Office == office
}

func taskPolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList {
		return true
	}
	t, ok := resource.(*model.Task)
	if !ok {
		return false
	}
	switch {
	case isSystemAdmin(u):
		return true
	case t.UserID == u.ID:
		return true
	case action == ActionCreate:
		// Filing on behalf of someone else.
		return u.Role == model.RoleAdmin && sameOffice(u, t.Office)
	default:
		return isOfficeManager(u) && sameOffice(u, t.Office)
	}
}

func leavePolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList {
		return true
	}
	l, ok := resource.(*model.Leave)
	if !ok {
		return false
	}
	if isSystemAdmin(u) {
		return true
	}
	managesOffice := isOfficeManager(u) && sameOffice(u, l.Office)
	switch action {
	case ActionApprove:
		return managesOffice
	case ActionCreate:
		return l.UserID == u.ID || managesOffice
	default:
		return l.UserID == u.ID || l.RequestedByID == u.ID || managesOffice
	}
}

func meetingPolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList || action == ActionCreate {
		return true
	}
	m, ok := resource.(*model.Meeting)
	if !ok {
		return false
	}
	if isSystemAdmin(u) || m.CreatedByID == u.ID {
		return true
	}
	switch action {
	case ActionView:
		return m.HasParticipant(u.ID) || (isOfficeManager(u) && sameOffice(u, m.Office))
	case ActionUpdate, ActionDelete:
		return u.Role == model.RoleAdmin && sameOffice(u, m.Office)
	}
	return false
}

func collaborationPolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList || action == ActionCreate {
		return true
	}
	c, ok := resource.(*model.Collaboration)
	if !ok {
		return false
	}
	if isSystemAdmin(u) || c.CreatedByID == u.ID {
		return true
	}
	switch action {
	case ActionView:
		return sameOffice(u, c.Office)
	case ActionUpdate, ActionDelete:
		return u.Role == model.RoleAdmin && sameOffice(u, c.Office)
	}
	return false
}

// userPolicy covers both the target row and, for create/update, the state
// the caller wants to write: handlers authorize the proposed user too, so an
// Admin can neither touch a SystemAdmin nor promote anyone to SystemAdmin.
func userPolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList {
		return true
	}
	target, ok := resource.(*model.User)
	if !ok {
		return false
	}
	if action == ActionDelete && target.ID == u.ID {
		return false
	}
	if isSystemAdmin(u) {
		return true
	}
	switch action {
	case ActionView:
		return target.ID == u.ID || (isOfficeManager(u) && sameOffice(u, target.Office))
	case ActionCreate, ActionUpdate, ActionDelete:
		return u.Role == model.RoleAdmin &&
			sameOffice(u, target.Office) &&
			target.Role != model.RoleSystemAdmin
	}
	return false
}

func auditPolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action != ActionView && action != ActionList {
		return false
	}
	if isSystemAdmin(u) {
		return true
	}
	if u.Role != model.RoleAdmin {
		return false
	}
	if action == ActionList {
		return true
	}
	a, ok := resource.(*model.AuditLog)
	return ok && sameOffice(u, a.Office)
}

func dropdownPolicy(_ context.Context, u *model.User, action Action, _ any) bool {
	switch action {
	case ActionView, ActionList:
		return true
	default:
		return u.HasRole(model.RoleSystemAdmin, model.RoleAdmin)
	}
}

func templatePolicy(_ context.Context, u *model.User, action Action, _ any) bool {
	switch action {
	case ActionView, ActionList:
		return u.HasRole(model.RoleSystemAdmin, model.RoleAdmin)
	default:
		return isSystemAdmin(u)
	}
}

func filePolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList || action == ActionCreate {
		return true
	}
	f, ok := resource.(*model.File)
	if !ok {
		return false
	}
	if isSystemAdmin(u) || f.UserID == u.ID {
		return true
	}
	switch action {
	case ActionView:
		return isOfficeManager(u) && sameOffice(u, f.Office)
	case ActionDelete:
		return u.Role == model.RoleAdmin && sameOffice(u, f.Office)
	}
	return false
}

func notificationPolicy(_ context.Context, u *model.User, action Action, resource any) bool {
	if action == ActionList {
		return true
	}
	n, ok := resource.(*model.Notification)
	if !ok {
		return false
	}
	return Visible(u, n)
}

// Visible reports whether notification n is addressed to u.
func Visible(u *model.User, n *model.Notification) bool {
	if n.UserID != nil {
		return *n.UserID == u.ID
	}
	if n.RecipientRole != nil && *n.RecipientRole != u.Role {
		return false
	}
	if n.RecipientOffice != nil && *n.RecipientOffice != u.Office {
		return false
	}
	return true
}
