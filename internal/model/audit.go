package model

import (
	"time"

	"gorm.io/gorm"
)

// Audit actions.
const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionLogin   = "LOGIN"
	ActionLogout  = "LOGOUT"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionUpload  = "UPLOAD"
)

// Audited resource types.
const (
	ResourceUser          = "User"
	ResourceTask          = "Task"
	ResourceLeave         = "Leave"
	ResourceMeeting       = "Meeting"
	ResourceCollaboration = "Collaboration"
	ResourceDropdown      = "Dropdown"
	ResourceTemplate      = "PermissionTemplate"
	ResourceFile          = "File"
)

// AuditLog is an append-only history record.
type AuditLog struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	UserID       string    `gorm:"type:text;not null;default:'';index" json:"userId"`
	UserName     string    `gorm:"type:text;not null;default:''" json:"userName"`
	Office       string    `gorm:"type:text;not null;default:'';index" json:"office"`
	Action       string    `gorm:"type:text;not null;index" json:"action"`
	ResourceType string    `gorm:"type:text;not null;index" json:"resourceType"`
	ResourceID   string    `gorm:"type:text;not null;default:'';index" json:"resourceId"`
	Description  string    `gorm:"type:text;not null;default:''" json:"description"`
	IP           string    `gorm:"type:text;not null;default:''" json:"ip"`
	UserAgent    string    `gorm:"type:text;not null;default:''" json:"userAgent"`
	CreatedAt    time.Time `gorm:"not null;index" json:"createdAt"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return nil
}
