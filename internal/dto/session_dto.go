package dto

import (
	"time"

	"consultorio/internal/service"
)

type SessionSummary struct {
	ID         string    `json:"id"`
	Device     *string   `json:"device,omitempty"`
	IPAddress  *string   `json:"ip_address,omitempty"`
	UserAgent  *string   `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

func SessionSummariesFromViews(views []service.SessionView) []SessionSummary {
	summaries := make([]SessionSummary, 0, len(views))
	for _, view := range views {
		summaries = append(summaries, SessionSummary{
			ID:         view.ID.String(),
			Device:     view.Device,
			IPAddress:  view.IPAddress,
			UserAgent:  view.UserAgent,
			CreatedAt:  view.CreatedAt,
			LastUsedAt: view.LastUsedAt,
			ExpiresAt:  view.ExpiresAt,
			Current:    view.Current,
		})
	}
	return summaries
}

func SessionResponseFromResult(result *service.LoginResult) *SessionResponse {
	if result == nil {
		return &SessionResponse{}
	}
	response := &SessionResponse{
		AccessToken:       result.AccessToken,
		ExpiresIn:         result.AccessExpiresIn,
		RefreshToken:      result.RefreshToken,
		MFARequired:       result.MFARequired,
		MFAToken:          result.MFAToken,
		MFATokenExpiresIn: result.MFATokenExpiresIn,
	}
	if !result.MFARequired {
		expiresAt := result.ExpiresAt
		response.SessionID = result.SessionID.String()
		response.ExpiresAt = &expiresAt
	}
	return response
}
