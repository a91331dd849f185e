package model

import (
	"time"

	"gorm.io/gorm"
)

// PermissionKeys are the capability flags a PermissionTemplate may carry.
var PermissionKeys = []string{
	"canManageUsers",
	"canManageTasks",
	"canViewAllTasks",
	"canManageLeaves",
	"canApproveLeaves",
	"canManageMeetings",
	"canManageCollaborations",
	"canManageDropdowns",
	"canViewAuditLogs",
	"canManageTemplates",
	"canExportData",
}

// PermissionTemplate is a named bag of capability flags. It is informational:
// request authorization never reads it.
type PermissionTemplate struct {
	ID          string          `gorm:"type:text;primaryKey" json:"id"`
	Name        string          `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description string          `gorm:"type:text;not null;default:''" json:"description"`
	Permissions map[string]bool `gorm:"type:text;serializer:json" json:"permissions"`
	CreatedBy   string          `gorm:"type:text;not null;default:''" json:"createdBy"`
	UpdatedBy   string          `gorm:"type:text;not null;default:''" json:"updatedBy"`
	CreatedAt   time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a UUID primary key if not set.
func (p *PermissionTemplate) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = newID()
	}
	return nil
}

// NormalizePermissions returns a map holding exactly PermissionKeys, with
// unknown keys dropped and missing keys false.
func NormalizePermissions(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(PermissionKeys))
	for _, k := range PermissionKeys {
		out[k] = in[k]
	}
	return out
}
