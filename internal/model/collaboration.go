package model

import (
	"time"

	"gorm.io/gorm"
)

// Collaboration urgencies and statuses.
const (
	UrgencyLow    = "Low"
	UrgencyMedium = "Medium"
	UrgencyHigh   = "High"

	CollaborationOpen   = "Open"
	CollaborationClosed = "Closed"
)

// Collaboration is a request for help posted to an office.
type Collaboration struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	CreatedByID   string    `gorm:"type:text;not null;index" json:"createdById"`
	CreatedByName string    `gorm:"type:text;not null;default:''" json:"createdByName"`
	Office        string    `gorm:"type:text;not null;default:'';index" json:"office"`
	Title         string    `gorm:"type:text;not null" json:"title"`
	Description   string    `gorm:"type:text;not null;default:''" json:"description"`
	Availability  string    `gorm:"type:text;not null;default:''" json:"availability"`
	Urgency       string    `gorm:"type:text;not null" json:"urgency"`
	Status        string    `gorm:"type:text;not null" json:"status"`
	CreatedAt     time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a UUID primary key and fills defaults.
func (c *Collaboration) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Urgency == "" {
		c.Urgency = UrgencyMedium
	}
	if c.Status == "" {
		c.Status = CollaborationOpen
	}
	return nil
}
