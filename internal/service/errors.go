package service

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidToken           = errors.New("invalid or expired token")
	ErrMFARequired            = errors.New("mfa required")
	ErrInvalidMFACode         = errors.New("invalid mfa code")
	ErrMFANotConfigured       = errors.New("mfa not configured")
	ErrUserNotFound           = errors.New("user not found")
)

// Session protocol failures. All of them mean "log in again" except
// ErrTooManyRequests, which the client may retry after a short delay.
var (
	ErrInvalidSession           = errors.New("invalid session")
	ErrSessionRevoked           = errors.New("session revoked")
	ErrSuspiciousActivity       = errors.New("suspicious activity detected, session revoked")
	ErrRefreshTokenExpired      = errors.New("refresh token expired")
	ErrSessionExpiredInactivity = errors.New("session expired due to inactivity")
	ErrIPMismatch               = errors.New("ip address mismatch, session revoked")
	ErrUserAgentMismatch        = errors.New("user agent mismatch, session revoked")
	ErrTooManyRequests          = errors.New("too many refresh requests")
)
