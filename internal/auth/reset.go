package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnothi/dnothi/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// ErrInvalidResetToken is returned for forged, expired or already used
// password reset tokens.
var ErrInvalidResetToken = errors.New("reset token is invalid or expired")

// ResetStore issues single-use password reset tokens. The token handed to
// the user is a JWT signed with its own secret; its ID is stored hashed so
// it can be burned on use.
type ResetStore struct {
	db     *gorm.DB
	secret string
	ttl    time.Duration
}

// NewResetStore creates a ResetStore.
func NewResetStore(db *gorm.DB, secret string, ttl time.Duration) *ResetStore {
	return &ResetStore{db: db, secret: secret, ttl: ttl}
}

// Issue creates a reset token for userID.
func (s *ResetStore) Issue(ctx context.Context, userID string) (string, error) {
	nonce, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate reset nonce: %w", err)
	}
	now := time.Now()
	row := &model.PasswordResetToken{
		UserID:    userID,
		TokenHash: hashToken(nonce),
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	claims := jwt.RegisteredClaims{
		ID:        nonce,
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
}

// Consume validates tokenStr, marks it used and returns the user ID.
func (s *ResetStore) Consume(ctx context.Context, tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	if err := parse(tokenStr, s.secret, &claims); err != nil {
		return "", ErrInvalidResetToken
	}

	db := s.db.WithContext(ctx)
	var row model.PasswordResetToken
	if err := db.Where("token_hash = ? AND user_id = ?", hashToken(claims.ID), claims.Subject).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidResetToken
		}
		return "", fmt.Errorf("find reset token: %w", err)
	}
	if row.UsedAt != nil || time.Now().After(row.ExpiresAt) {
		return "", ErrInvalidResetToken
	}

	res := db.Model(&model.PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", row.ID).
		Update("used_at", time.Now())
	if res.Error != nil {
		return "", fmt.Errorf("burn reset token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrInvalidResetToken
	}
	return claims.Subject, nil
}
