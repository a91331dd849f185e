package model

import (
	"time"

	"gorm.io/gorm"
)

// Meeting is a scheduled meeting. Participants are held only by the
// meeting_users join table; SelectedUserIDs is filled from it on read.
type Meeting struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	CreatedByID   string    `gorm:"type:text;not null;index" json:"createdById"`
	CreatedByName string    `gorm:"type:text;not null;default:''" json:"createdByName"`
	Office        string    `gorm:"type:text;not null;default:'';index" json:"office"`
	Subject       string    `gorm:"type:text;not null" json:"subject"`
	Platform      string    `gorm:"type:text;not null;default:''" json:"platform"`
	Location      string    `gorm:"type:text;not null;default:''" json:"location"`
	Date          string    `gorm:"type:text;not null;index" json:"date"`
	StartTime     string    `gorm:"type:text;not null;default:''" json:"startTime"`
	Duration      int       `gorm:"not null;default:0" json:"duration"`
	Description   string    `gorm:"type:text;not null;default:''" json:"description"`
	Link          string    `gorm:"type:text;not null;default:''" json:"link"`
	Participants  []User    `gorm:"many2many:meeting_users" json:"participants"`
	CreatedAt     time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"not null" json:"updatedAt"`

	SelectedUserIDs []string `gorm:"-" json:"selectedUserIds"`
}

// BeforeCreate generates a UUID primary key if not set.
func (m *Meeting) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

// AfterFind derives SelectedUserIDs from preloaded participants.
func (m *Meeting) AfterFind(_ *gorm.DB) error {
	m.ProjectParticipants()
	return nil
}

// ProjectParticipants recomputes SelectedUserIDs from Participants.
func (m *Meeting) ProjectParticipants() {
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.ID)
	}
	m.SelectedUserIDs = ids
}

// HasParticipant reports whether userID is among the participants.
func (m *Meeting) HasParticipant(userID string) bool {
	for _, p := range m.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
