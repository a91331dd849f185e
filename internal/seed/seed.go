// Package seed creates the initial SystemAdmin account on first boot.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/dnothi/dnothi/internal/model"
	"gorm.io/gorm"
)

// AdminOptions configures the seed admin user.
type AdminOptions struct {
	Username string
	Email    string
	Password string // if empty, a random password is generated
	Quota    int64
}

// EnsureAdmin creates a SystemAdmin named opts.Username unless a user with
// that name already exists. A generated password is printed to stdout once
// and returned; otherwise the returned password is empty.
// The function is idempotent: it is safe to call on every startup.
func EnsureAdmin(ctx context.Context, db *gorm.DB, opts AdminOptions, log *slog.Logger) (string, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&model.User{}).Where("username = ?", opts.Username).Count(&count).Error; err != nil {
		return "", fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists", "username", opts.Username)
		return "", nil
	}

	password := opts.Password
	generated := password == ""
	if generated {
		var err error
		password, err = generatePassword()
		if err != nil {
			return "", fmt.Errorf("generate seed password: %w", err)
		}
		fmt.Printf("[dnothi] seed admin %q password: %s\n", opts.Username, password)
	}

	u := &model.User{
		Username:     opts.Username,
		Email:        opts.Email,
		Password:     password,
		FullName:     "System Administrator",
		Role:         model.RoleSystemAdmin,
		IsActive:     true,
		StorageQuota: opts.Quota,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return "", fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "username", opts.Username, "email", opts.Email)
	if !generated {
		return "", nil
	}
	return password, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
