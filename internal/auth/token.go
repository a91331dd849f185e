// Package auth provides JWT token issuance and validation, refresh token
// rotation and password reset tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "dnothi"

// Claims is the set of custom claims stored inside a D-Nothi access token.
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Office   string `json:"office,omitempty"`
	jwt.RegisteredClaims
}

// Subject is the identity an access token is issued for.
type Subject struct {
	UserID   string
	Username string
	Role     string
	Office   string
}

// IssueAccessToken creates and signs a new JWT access token.
func IssueAccessToken(sub Subject, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   sub.UserID,
		Username: sub.Username,
		Role:     sub.Role,
		Office:   sub.Office,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken validates the token string and returns its Claims.
// An expired token yields an error matching jwt.ErrTokenExpired.
func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	if err := parse(tokenStr, secret, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func parse(tokenStr, secret string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token claims")
	}
	return nil
}
