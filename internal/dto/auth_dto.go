package dto

import (
	"encoding/json"
	"time"

	"consultorio/internal/entity"
)

type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	Device    string  `json:"device" validate:"omitempty,max=255"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Device   string `json:"device" validate:"omitempty,max=255"`
}

type LoginMFARequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required,numeric,len=6"`
	Device   string `json:"device" validate:"omitempty,max=255"`
}

// RefreshRequest may be empty; the handler then falls back to the
// session_id and refresh_token cookies.
type RefreshRequest struct {
	SessionID    string `json:"session_id" validate:"omitempty,uuid"`
	RefreshToken string `json:"refresh_token"`
	Device       string `json:"device" validate:"omitempty,max=255"`
}

type SessionResponse struct {
	AccessToken       string     `json:"access_token,omitempty"`
	ExpiresIn         int64      `json:"expires_in,omitempty"`
	RefreshToken      string     `json:"refresh_token,omitempty"`
	SessionID         string     `json:"session_id,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	MFARequired       bool       `json:"mfa_required,omitempty"`
	MFAToken          string     `json:"mfa_token,omitempty"`
	MFATokenExpiresIn int64      `json:"mfa_token_expires_in,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type PasswordForgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type MFAEnableResponse struct {
	OTPAuthURL string `json:"otpauth_url"`
}

type MFAVerifyRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     *string   `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func UserResponseFromEntity(user *entity.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Role:      string(user.Role),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func UserResponsesFromEntities(users []entity.User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, UserResponseFromEntity(&users[i]))
	}
	return responses
}

type SecurityLogResponse struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	IPAddress *string        `json:"ip_address,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func SecurityLogResponsesFromEntities(logs []entity.SecurityLog) []SecurityLogResponse {
	responses := make([]SecurityLogResponse, 0, len(logs))
	for _, log := range logs {
		var metadata map[string]any
		if len(log.Metadata) > 0 {
			_ = json.Unmarshal(log.Metadata, &metadata)
		}
		responses = append(responses, SecurityLogResponse{
			ID:        log.ID.String(),
			Action:    string(log.Action),
			IPAddress: log.IPAddress,
			Metadata:  metadata,
			CreatedAt: log.CreatedAt,
		})
	}
	return responses
}
