package model

import (
	"time"

	"gorm.io/gorm"
)

// File is an uploaded blob and where it lives.
type File struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	UserID       string    `gorm:"type:text;not null;index" json:"userId"`
	Office       string    `gorm:"type:text;not null;default:'';index" json:"office"`
	OriginalName string    `gorm:"type:text;not null" json:"originalName"`
	StoredName   string    `gorm:"type:text;not null" json:"storedName"`
	Location     string    `gorm:"type:text;not null" json:"-"`
	URL          string    `gorm:"type:text;not null;default:''" json:"url"`
	Backend      string    `gorm:"type:text;not null" json:"backend"`
	Size         int64     `gorm:"not null" json:"size"`
	MimeType     string    `gorm:"type:text;not null;default:''" json:"mimeType"`
	TaskID       *string   `gorm:"type:text;index" json:"taskId"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
}

// BeforeCreate generates a UUID primary key if not set.
func (f *File) BeforeCreate(_ *gorm.DB) error {
	if f.ID == "" {
		f.ID = newID()
	}
	return nil
}
