package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Leave statuses.
const (
	LeavePending  = "Pending"
	LeaveApproved = "Approved"
	LeaveRejected = "Rejected"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Leave is a leave request. UserID is the person on leave; RequestedByID is
// who filed it, which differs when an admin files on someone's behalf.
type Leave struct {
	ID              string     `gorm:"type:text;primaryKey" json:"id"`
	UserID          string     `gorm:"type:text;not null;index" json:"userId"`
	UserName        string     `gorm:"type:text;not null;default:''" json:"userName"`
	RequestedByID   string     `gorm:"type:text;not null;index" json:"requestedById"`
	RequestedByName string     `gorm:"type:text;not null;default:''" json:"requestedByName"`
	Office          string     `gorm:"type:text;not null;default:'';index" json:"office"`
	LeaveType       string     `gorm:"type:text;not null" json:"leaveType"`
	StartDate       string     `gorm:"type:text;not null" json:"startDate"`
	EndDate         string     `gorm:"type:text;not null" json:"endDate"`
	Days            int        `gorm:"not null" json:"days"`
	Reason          string     `gorm:"type:text;not null;default:''" json:"reason"`
	Status          string     `gorm:"type:text;not null;index" json:"status"`
	ApprovedByID    *string    `gorm:"type:text" json:"approvedById"`
	ApprovedByName  string     `gorm:"type:text;not null;default:''" json:"approvedByName"`
	ApprovedAt      *time.Time `json:"approvedAt"`
	RejectionReason string     `gorm:"type:text;not null;default:''" json:"rejectionReason"`
	CreatedAt       time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a UUID primary key and defaults the status.
func (l *Leave) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.Status == "" {
		l.Status = LeavePending
	}
	return nil
}

// LeaveDays returns the inclusive day count between two YYYY-MM-DD dates.
func LeaveDays(start, end string) (int, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return 0, fmt.Errorf("parse start date: %w", err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return 0, fmt.Errorf("parse end date: %w", err)
	}
	if e.Before(s) {
		return 0, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return int(e.Sub(s).Hours()/24) + 1, nil
}
