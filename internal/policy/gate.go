// Package policy is the single place where D-Nothi decides whether a user may
// act on a resource. A Gate holds one Policy per resource type; handlers call
// Gate.Authorize before touching a row and Scope before listing rows.
package policy

import (
	"context"
	"errors"

	"github.com/dnothi/dnothi/internal/model"
)

// Action describes the kind of operation a user wants to perform.
type Action string

const (
	ActionView    Action = "view"
	ActionList    Action = "list"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionComment Action = "comment"
)

// Resource type names.
const (
	Task          = "task"
	Leave         = "leave"
	Meeting       = "meeting"
	Collaboration = "collaboration"
	User          = "user"
	Audit         = "audit"
	Dropdown      = "dropdown"
	Template      = "template"
	File          = "file"
	Notification  = "notification"
)

// Sentinel errors returned by Gate.Authorize.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNoPolicyDefined = errors.New("no policy defined for resource")
)

// Policy defines authorization rules for a resource type. For list and
// create checks that have no row yet, resource may be nil.
type Policy interface {
	Can(ctx context.Context, user *model.User, action Action, resource any) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, user *model.User, action Action, resource any) bool

// Can calls f.
func (f PolicyFunc) Can(ctx context.Context, user *model.User, action Action, resource any) bool {
	return f(ctx, user, action, resource)
}

// Gate is the central authorization checkpoint.
type Gate struct {
	policies map[string]Policy
}

// NewGate creates an empty Gate.
func NewGate() *Gate {
	return &Gate{policies: make(map[string]Policy)}
}

// Default returns a Gate with every D-Nothi resource policy registered.
func Default() *Gate {
	g := NewGate()
	g.Register(Task, PolicyFunc(taskPolicy))
	g.Register(Leave, PolicyFunc(leavePolicy))
	g.Register(Meeting, PolicyFunc(meetingPolicy))
	g.Register(Collaboration, PolicyFunc(collaborationPolicy))
	g.Register(User, PolicyFunc(userPolicy))
	g.Register(Audit, PolicyFunc(auditPolicy))
	g.Register(Dropdown, PolicyFunc(dropdownPolicy))
	g.Register(Template, PolicyFunc(templatePolicy))
	g.Register(File, PolicyFunc(filePolicy))
	g.Register(Notification, PolicyFunc(notificationPolicy))
	return g
}

// Register adds a policy for a resource type, replacing any existing one.
func (g *Gate) Register(resourceType string, p Policy) {
	g.policies[resourceType] = p
}

// Authorize returns nil when user may perform action on resource.
func (g *Gate) Authorize(ctx context.Context, user *model.User, action Action, resourceType string, resource any) error {
	if user == nil || user.ID == "" {
		return ErrUnauthenticated
	}
	p, ok := g.policies[resourceType]
	if !ok {
		return ErrNoPolicyDefined
	}
	if !p.Can(ctx, user, action, resource) {
		return ErrForbidden
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate) Can(ctx context.Context, user *model.User, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}
