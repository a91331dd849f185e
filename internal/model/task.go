package model

import (
	"time"

	"gorm.io/gorm"
)

// Task statuses.
const (
	TaskPending    = "Pending"
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
)

// Comment is an entry in Task.Comments.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewComment stamps a comment with a fresh id and the current time.
func NewComment(userID, userName, text string) Comment {
	return Comment{ID: newID(), UserID: userID, UserName: userName, Text: text, CreatedAt: time.Now().UTC()}
}

// Attachment is an entry in Task.Attachments.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// Task is a unit of work logged by an agent. UserName and Office are copied
// from the owning user at creation.
type Task struct {
	ID          string       `gorm:"type:text;primaryKey" json:"id"`
	UserID      string       `gorm:"type:text;not null;index" json:"userId"`
	UserName    string       `gorm:"type:text;not null;default:''" json:"userName"`
	Office      string       `gorm:"type:text;not null;default:'';index" json:"office"`
	Date        string       `gorm:"type:text;not null;index" json:"date"`
	Source      string       `gorm:"type:text;not null;default:''" json:"source"`
	Category    string       `gorm:"type:text;not null;default:''" json:"category"`
	Service     string       `gorm:"type:text;not null;default:''" json:"service"`
	SubCategory string       `gorm:"type:text;not null;default:''" json:"subCategory"`
	Incident    string       `gorm:"type:text;not null;default:''" json:"incident"`
	Obligation  string       `gorm:"type:text;not null;default:''" json:"obligation"`
	Description string       `gorm:"type:text;not null;default:''" json:"description"`
	Status      string       `gorm:"type:text;not null;index" json:"status"`
	Comments    []Comment    `gorm:"type:text;serializer:json" json:"comments"`
	Attachments []Attachment `gorm:"type:text;serializer:json" json:"attachments"`
	Files       StringSlice  `gorm:"type:text;serializer:json" json:"files"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a UUID primary key and fills defaults.
func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Comments == nil {
		t.Comments = []Comment{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	if t.Files == nil {
		t.Files = StringSlice{}
	}
	return nil
}
