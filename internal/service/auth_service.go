package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"consultorio/internal/entity"
	"consultorio/internal/repository"
	"consultorio/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dummyPasswordHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8yQbWc1x9uxw2sQ2sXUNx5x9xJ9F2S"

const refreshTokenBytes = 48

const (
	MessageSessionClosed        = "session closed"
	MessageSessionAlreadyClosed = "session already closed"
	MessageAllSessionsClosed    = "all sessions closed"
)

type AuthService struct {
	users        repository.UserRepository
	sessions     repository.SessionRepository
	resetTokens  repository.ResetTokenRepository
	mfaSecrets   repository.MFASecretRepository
	securityLogs repository.SecurityLogRepository

	resetSender  PasswordResetSender
	passwordHash PasswordHasher
	accessTokens AccessTokenIssuer
	mfaTokens    MFATokenIssuer
	mfaProvider  MFAProvider
	clock        Clock
	logger       logrus.FieldLogger
	config       AuthConfig

	guards refreshGuards
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	resetTokens repository.ResetTokenRepository,
	mfaSecrets repository.MFASecretRepository,
	securityLogs repository.SecurityLogRepository,
	resetSender PasswordResetSender,
	passwordHash PasswordHasher,
	accessTokens AccessTokenIssuer,
	mfaTokens MFATokenIssuer,
	mfaProvider MFAProvider,
	clock Clock,
	logger logrus.FieldLogger,
	config AuthConfig,
) *AuthService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &AuthService{
		users:        users,
		sessions:     sessions,
		resetTokens:  resetTokens,
		mfaSecrets:   mfaSecrets,
		securityLogs: securityLogs,
		resetSender:  resetSender,
		passwordHash: passwordHash,
		accessTokens: accessTokens,
		mfaTokens:    mfaTokens,
		mfaProvider:  mfaProvider,
		clock:        clock,
		logger:       logger,
		config:       config,
	}
	s.guards = newRefreshGuards(s.inactivityTTL(), s.minRefreshInterval())
	return s
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Email) == "" || strings.TrimSpace(input.Password) == "" ||
		strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, ErrInvalidInput
	}

	email := utils.NormalizeEmail(input.Email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}

	hash, err := s.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &entity.User{
		Email:        email,
		PasswordHash: hash,
		Role:         entity.UserRoleStaff,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        input.Phone,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	result, err := s.createSessionAndTokens(ctx, user, input.Meta)
	if err != nil {
		return nil, err
	}
	s.logSecurity(ctx, &user.ID, &result.SessionID, input.Meta.IPAddress, entity.Registered, nil)
	return result, nil
}

// Login verifies the credentials and opens a session. When the account has
// TOTP enabled no session is created yet; the result carries an MFA token to
// finish with LoginWithMFA.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.verifyCredentials(ctx, input.Email, input.Password, input.Meta)
	if err != nil {
		return nil, err
	}

	if s.mfaProvider != nil && s.mfaSecrets != nil && s.mfaTokens != nil {
		secret, err := s.mfaSecrets.FindByUserID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("find mfa secret: %w", err)
		}
		if secret != nil && secret.EnabledAt != nil {
			mfaToken, expiresIn, err := s.mfaTokens.IssueMFAToken(user.ID)
			if err != nil {
				return nil, err
			}
			return &LoginResult{
				MFARequired:       true,
				MFAToken:          mfaToken,
				MFATokenExpiresIn: int64(expiresIn.Seconds()),
			}, nil
		}
	}

	result, err := s.createSessionAndTokens(ctx, user, input.Meta)
	if err != nil {
		return nil, err
	}
	s.logSecurity(ctx, &user.ID, &result.SessionID, input.Meta.IPAddress, entity.LoginSuccess, deviceMetadata(input.Meta))
	return result, nil
}

// Refresh rotates the refresh token of a session. The attempt runs through
// the guard chain first; guards that signal a compromised session revoke it
// even though the call fails.
func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (*LoginResult, error) {
	if input.SessionID == uuid.Nil {
		return nil, ErrInvalidSession
	}

	session, err := s.sessions.FindByID(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	now := s.now()
	attempt := refreshAttempt{
		session:        session,
		presentedToken: input.RefreshToken,
		meta:           input.Meta,
		now:            now,
	}
	if guard := s.guards.firstFailure(attempt); guard != nil {
		return nil, s.rejectRefresh(ctx, session, guard, input.Meta)
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidSession
	}

	refreshToken, err := utils.GenerateRandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	tokenHash := utils.HashToken(refreshToken)
	expiresAt := now.Add(s.refreshTokenTTL())

	update := repository.SessionUpdate{
		RefreshTokenHash: &tokenHash,
		ExpiresAt:        &expiresAt,
		LastUsedAt:       &now,
		Device:           input.Meta.Device,
	}
	if session.IPAddress == nil {
		update.IPAddress = input.Meta.IPAddress
	}
	if session.UserAgent == nil {
		update.UserAgent = input.Meta.UserAgent
	}
	if err := s.sessions.Update(ctx, session.ID, update); err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	accessToken, accessTTL, err := s.accessTokens.IssueAccessToken(*user, session.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:     accessToken,
		AccessExpiresIn: int64(accessTTL.Seconds()),
		RefreshToken:    refreshToken,
		SessionID:       session.ID,
		ExpiresAt:       expiresAt,
	}, nil
}

// Logout closes one session. Closing an already closed session succeeds.
func (s *AuthService) Logout(ctx context.Context, sessionID uuid.UUID, meta RequestMeta) (string, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return "", ErrInvalidSession
	}
	if session.Revoked {
		return MessageSessionAlreadyClosed, nil
	}

	if err := s.sessions.Update(ctx, session.ID, s.revocation()); err != nil {
		return "", fmt.Errorf("revoke session: %w", err)
	}
	s.logSecurity(ctx, &session.UserID, &session.ID, meta.IPAddress, entity.Logout, nil)
	return MessageSessionClosed, nil
}

// LogoutAll closes every session of the user owning sessionID, including
// sessionID itself.
func (s *AuthService) LogoutAll(ctx context.Context, sessionID uuid.UUID, meta RequestMeta) (string, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return "", ErrInvalidSession
	}

	revoked, err := s.sessions.UpdateManyByUser(ctx, session.UserID, s.revocation())
	if err != nil {
		return "", fmt.Errorf("revoke user sessions: %w", err)
	}
	s.logSecurity(ctx, &session.UserID, &session.ID, meta.IPAddress, entity.LogoutAll, map[string]any{"sessions": revoked})
	return MessageAllSessionsClosed, nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID, currentSessionID uuid.UUID) ([]SessionView, error) {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:         session.ID,
			Device:     session.Device,
			IPAddress:  session.IPAddress,
			UserAgent:  session.UserAgent,
			CreatedAt:  session.CreatedAt,
			LastUsedAt: session.LastUsedAt,
			ExpiresAt:  session.ExpiresAt,
			Current:    session.ID == currentSessionID,
		})
	}
	return views, nil
}

func (s *AuthService) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]entity.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *AuthService) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	revoked, err := s.sessions.UpdateManyByUser(ctx, userID, s.revocation())
	if err != nil {
		return err
	}
	s.logSecurity(ctx, &userID, nil, nil, entity.SessionRevoked, map[string]any{"scope": "all", "sessions": revoked})
	return nil
}

func (s *AuthService) SessionSecurityLogs(ctx context.Context, sessionID uuid.UUID) ([]entity.SecurityLog, error) {
	if s.securityLogs == nil {
		return nil, nil
	}
	return s.securityLogs.ListBySession(ctx, sessionID)
}

func (s *AuthService) verifyCredentials(ctx context.Context, email string, password string, meta RequestMeta) (*entity.User, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidInput
	}

	normalized := utils.NormalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		_ = s.passwordHash.Verify(dummyPasswordHash, password)
		s.logSecurity(ctx, nil, nil, meta.IPAddress, entity.LoginFailed, map[string]any{"email": normalized})
		return nil, ErrInvalidCredentials
	}
	if !s.passwordHash.Verify(user.PasswordHash, password) {
		s.logSecurity(ctx, &user.ID, nil, meta.IPAddress, entity.LoginFailed, map[string]any{"email": normalized})
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) createSessionAndTokens(ctx context.Context, user *entity.User, meta RequestMeta) (*LoginResult, error) {
	refreshToken, err := utils.GenerateRandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	tokenHash := utils.HashToken(refreshToken)
	now := s.now()
	expiresAt := now.Add(s.refreshTokenTTL())

	session := &entity.Session{
		UserID:           user.ID,
		RefreshTokenHash: &tokenHash,
		Device:           meta.Device,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        expiresAt,
		LastUsedAt:       now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	accessToken, accessTTL, err := s.accessTokens.IssueAccessToken(*user, session.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:     accessToken,
		AccessExpiresIn: int64(accessTTL.Seconds()),
		RefreshToken:    refreshToken,
		SessionID:       session.ID,
		ExpiresAt:       expiresAt,
	}, nil
}

func (s *AuthService) rejectRefresh(ctx context.Context, session *entity.Session, guard *refreshGuard, meta RequestMeta) error {
	if !guard.revoke || session == nil {
		return guard.err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"session_id": session.ID.String(),
		"user_id":    session.UserID.String(),
		"guard":      guard.name,
	})
	if err := s.sessions.Update(ctx, session.ID, s.revocation()); err != nil {
		entry.WithError(err).Error("revoke session after failed refresh")
		return errors.Join(guard.err, fmt.Errorf("revoke session: %w", err))
	}
	entry.Warn("session revoked after failed refresh")

	action := entity.SessionRevoked
	if guard.err == ErrSuspiciousActivity {
		action = entity.SuspiciousActivity
	}
	s.logSecurity(ctx, &session.UserID, &session.ID, meta.IPAddress, action, map[string]any{"guard": guard.name})
	return guard.err
}

func (s *AuthService) revocation() repository.SessionUpdate {
	now := s.now()
	return repository.SessionUpdate{
		RevokedAt:         &now,
		ClearRefreshToken: true,
	}
}

// logSecurity is best effort: a failed audit write never fails the call.
func (s *AuthService) logSecurity(
	ctx context.Context,
	userID *uuid.UUID,
	sessionID *uuid.UUID,
	ipAddress *string,
	action entity.SecurityAction,
	metadata map[string]any,
) {
	if s.securityLogs == nil {
		return
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			s.logger.WithError(err).WithField("action", action).Error("encode security log metadata")
			return
		}
		payload = datatypes.JSON(bytes)
	}

	log := &entity.SecurityLog{
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: ipAddress,
		Action:    action,
		Metadata:  payload,
	}
	if err := s.securityLogs.Log(ctx, log); err != nil {
		s.logger.WithError(err).WithField("action", action).Error("write security log")
	}
}

func deviceMetadata(meta RequestMeta) map[string]any {
	if meta.Device == nil {
		return nil
	}
	return map[string]any{"device": *meta.Device}
}

func (s *AuthService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func (s *AuthService) refreshTokenTTL() time.Duration {
	if s.config.RefreshTokenTTL > 0 {
		return s.config.RefreshTokenTTL
	}
	return 30 * 24 * time.Hour
}

func (s *AuthService) inactivityTTL() time.Duration {
	if s.config.InactivityTTL > 0 {
		return s.config.InactivityTTL
	}
	return 30 * 24 * time.Hour
}

func (s *AuthService) minRefreshInterval() time.Duration {
	if s.config.MinRefreshInterval > 0 {
		return s.config.MinRefreshInterval
	}
	return 3 * time.Second
}

func (s *AuthService) resetTokenTTL() time.Duration {
	if s.config.ResetTokenTTL > 0 {
		return s.config.ResetTokenTTL
	}
	return 30 * time.Minute
}
