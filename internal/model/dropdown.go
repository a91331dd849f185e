package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Dropdown types.
const (
	DropdownSource      = "Source"
	DropdownCategory    = "Category"
	DropdownSubCategory = "Sub-Category"
	DropdownIncident    = "Incident"
	DropdownOffice      = "Office"
	DropdownObligation  = "Obligation"
)

// DropdownTypes lists every valid dropdown type.
var DropdownTypes = []string{
	DropdownSource, DropdownCategory, DropdownSubCategory,
	DropdownIncident, DropdownOffice, DropdownObligation,
}

// Dropdown is one admin-managed taxonomy value.
type Dropdown struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Type        string    `gorm:"type:text;not null;index" json:"type"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	ParentType  *string   `gorm:"type:text" json:"parentType"`
	ParentValue *string   `gorm:"type:text" json:"parentValue"`
	IsActive    bool      `gorm:"not null" json:"isActive"`
	CreatedBy   string    `gorm:"type:text;not null;default:''" json:"createdBy"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *Dropdown) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = newID()
	}
	return nil
}

// IsChildType reports whether values of type t hang under a Category.
func IsChildType(t string) bool {
	return t == DropdownSubCategory || t == DropdownIncident
}

// DropdownKey is the duplicate-detection key: type and value, trimmed and
// case-folded.
func DropdownKey(typ, value string) string {
	return strings.ToLower(strings.TrimSpace(typ)) + "\x00" + strings.ToLower(strings.TrimSpace(value))
}
