package service

import (
	"time"

	"consultorio/internal/entity"
	"consultorio/internal/utils"
)

type refreshAttempt struct {
	session        *entity.Session
	presentedToken string
	meta           RequestMeta
	now            time.Time
}

// refreshGuard is one step of the refresh policy. When reject reports true
// the refresh fails with err, and the session is revoked first if revoke is
// set.
type refreshGuard struct {
	name   string
	reject func(a refreshAttempt) bool
	revoke bool
	err    error
}

type refreshGuards []refreshGuard

// newRefreshGuards builds the policy in evaluation order. Guards after
// session_exists may assume a.session is non-nil.
func newRefreshGuards(inactivity, minInterval time.Duration) refreshGuards {
	return refreshGuards{
		{
			name:   "session_exists",
			reject: func(a refreshAttempt) bool { return a.session == nil },
			err:    ErrInvalidSession,
		},
		{
			name:   "not_revoked",
			reject: func(a refreshAttempt) bool { return a.session.Revoked },
			err:    ErrSessionRevoked,
		},
		{
			name: "token_matches",
			reject: func(a refreshAttempt) bool {
				return !utils.TokenMatchesHash(a.presentedToken, a.session.RefreshTokenHash)
			},
			revoke: true,
			err:    ErrSuspiciousActivity,
		},
		{
			name:   "not_expired",
			reject: func(a refreshAttempt) bool { return !a.session.ExpiresAt.After(a.now) },
			err:    ErrRefreshTokenExpired,
		},
		{
			// Unreachable while InactivityTTL >= RefreshTokenTTL, since every
			// rotation moves expires_at and last_used_at together.
			name:   "inactivity",
			reject: func(a refreshAttempt) bool { return a.now.Sub(a.session.LastUsedAt) > inactivity },
			revoke: true,
			err:    ErrSessionExpiredInactivity,
		},
		{
			name:   "ip_binding",
			reject: func(a refreshAttempt) bool { return boundValueDiffers(a.session.IPAddress, a.meta.IPAddress) },
			revoke: true,
			err:    ErrIPMismatch,
		},
		{
			name:   "user_agent_binding",
			reject: func(a refreshAttempt) bool { return boundValueDiffers(a.session.UserAgent, a.meta.UserAgent) },
			revoke: true,
			err:    ErrUserAgentMismatch,
		},
		{
			name:   "throttle",
			reject: func(a refreshAttempt) bool { return a.now.Sub(a.session.LastUsedAt) < minInterval },
			err:    ErrTooManyRequests,
		},
	}
}

// firstFailure returns the first guard that rejects the attempt, or nil.
func (g refreshGuards) firstFailure(a refreshAttempt) *refreshGuard {
	for i := range g {
		if g[i].reject(a) {
			return &g[i]
		}
	}
	return nil
}

func boundValueDiffers(stored, presented *string) bool {
	if stored == nil {
		return false
	}
	return presented == nil || *presented != *stored
}
