package service

import (
	"context"
	"time"

	"consultorio/internal/entity"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthConfig struct {
	RefreshTokenTTL time.Duration
	// InactivityTTL is the ceiling on the gap between two accepted refreshes.
	InactivityTTL time.Duration
	// MinRefreshInterval throttles refreshes on the same session.
	MinRefreshInterval time.Duration
	ResetTokenTTL      time.Duration
	MFAIssuer          string
}

type PasswordResetSender interface {
	SendPasswordResetEmail(ctx context.Context, email string, token string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

type AccessTokenIssuer interface {
	IssueAccessToken(user entity.User, sessionID uuid.UUID) (string, time.Duration, error)
}

type MFATokenIssuer interface {
	IssueMFAToken(userID uuid.UUID) (string, time.Duration, error)
	ParseMFAToken(token string) (uuid.UUID, error)
}

type MFAProvider interface {
	// GenerateSecret returns a new seed and the otpauth:// URL to enroll it.
	GenerateSecret(accountName string) (secret string, url string, err error)
	ValidateCode(secret string, code string, at time.Time) bool
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

type BcryptPasswordHasher struct {
	Cost int
}

func (h BcryptPasswordHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptPasswordHasher) Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
