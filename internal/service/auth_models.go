package service

import (
	"time"

	"github.com/google/uuid"
)

// RequestMeta is the client fingerprint taken from the inbound request.
// Any field may be nil when the client did not send it.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
	Device    *string
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Meta      RequestMeta
}

type LoginInput struct {
	Email    string
	Password string
	Meta     RequestMeta
}

type LoginMFAInput struct {
	MFAToken string
	Code     string
	Meta     RequestMeta
}

type RefreshInput struct {
	SessionID    uuid.UUID
	RefreshToken string
	Meta         RequestMeta
}

type LoginResult struct {
	AccessToken     string
	AccessExpiresIn int64
	RefreshToken    string
	SessionID       uuid.UUID
	ExpiresAt       time.Time

	MFARequired       bool
	MFAToken          string
	MFATokenExpiresIn int64
}

type SessionView struct {
	ID         uuid.UUID
	Device     *string
	IPAddress  *string
	UserAgent  *string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	Current    bool
}
