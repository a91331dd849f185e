package model

import (
	"time"

	"gorm.io/gorm"
)

// Notification is the persisted copy of a pushed event. A nil UserID means
// the row is not user-targeted; RecipientRole and RecipientOffice then narrow
// who may see it.
type Notification struct {
	ID              string         `gorm:"type:text;primaryKey" json:"id"`
	Type            string         `gorm:"type:text;not null;index" json:"type"`
	Message         string         `gorm:"type:text;not null;default:''" json:"message"`
	UserID          *string        `gorm:"type:text;index" json:"userId"`
	RecipientRole   *string        `gorm:"type:text" json:"recipientRole"`
	RecipientOffice *string        `gorm:"type:text" json:"recipientOffice"`
	Data            map[string]any `gorm:"type:text;serializer:json" json:"data"`
	IsRead          bool           `gorm:"not null;index" json:"isRead"`
	ReadAt          *time.Time     `json:"readAt"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"createdAt"`
}

// BeforeCreate generates a UUID primary key if not set.
func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = newID()
	}
	return nil
}
