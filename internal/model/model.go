// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Roles. Authorization compares these literal strings; there is no hierarchy
// object behind them.
const (
	RoleSystemAdmin = "SystemAdmin"
	RoleAdmin       = "Admin"
	RoleSupervisor  = "Supervisor"
	RoleAgent       = "Agent"
)

// Roles lists every valid role.
var Roles = []string{RoleSystemAdmin, RoleAdmin, RoleSupervisor, RoleAgent}

// StringSlice is a []string that GORM serialises as JSON for both SQLite
// and PostgreSQL (TEXT column).
type StringSlice []string

func newID() string { return uuid.New().String() }

// User is the GORM model for the users table.
type User struct {
	ID           string `gorm:"type:text;primaryKey" json:"id"`
	Username     string `gorm:"type:text;not null;uniqueIndex" json:"username"`
	Email        string `gorm:"type:text;not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"type:text;not null;default:''" json:"-"`
	// Password is never stored; when set, BeforeSave replaces PasswordHash.
	Password     string     `gorm:"-" json:"-"`
	FullName     string     `gorm:"type:text;not null;default:''" json:"fullName"`
	Role         string     `gorm:"type:text;not null;index" json:"role"`
	Office       string     `gorm:"type:text;not null;default:'';index" json:"office"`
	Designation  string     `gorm:"type:text;not null;default:''" json:"designation"`
	Phone        string     `gorm:"type:text;not null;default:''" json:"phone"`
	IsActive     bool       `gorm:"not null" json:"isActive"`
	StorageQuota int64      `gorm:"not null;default:0" json:"storageQuota"`
	UsedStorage  int64      `gorm:"not null;default:0" json:"usedStorage"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate generates a UUID primary key if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	return nil
}

// BeforeSave hashes a pending plaintext password.
func (u *User) BeforeSave(_ *gorm.DB) error {
	if u.Password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	u.Password = ""
	return nil
}

var missingUserHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("no such user"), bcrypt.DefaultCost)
	return h
})

// ValidatePassword reports whether plain matches the stored hash. A nil
// user, or one without a hash, still costs one bcrypt comparison so login
// latency does not reveal which usernames exist.
func (u *User) ValidatePassword(plain string) bool {
	if u == nil || u.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(missingUserHash(), []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// HasRole reports whether the user holds one of roles.
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = newID()
	}
	return nil
}

// PasswordResetToken records a single-use reset token by its hash.
type PasswordResetToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *PasswordResetToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = newID()
	}
	return nil
}

// All returns every model in migration order.
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&PasswordResetToken{},
		&Task{},
		&Leave{},
		&Meeting{},
		&Collaboration{},
		&Dropdown{},
		&PermissionTemplate{},
		&AuditLog{},
		&Notification{},
		&File{},
	}
}
