package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"consultorio/internal/entity"
	"consultorio/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *AuthService) LoginWithMFA(ctx context.Context, input LoginMFAInput) (*LoginResult, error) {
	if s.mfaProvider == nil || s.mfaTokens == nil || s.mfaSecrets == nil {
		return nil, ErrMFANotConfigured
	}
	if strings.TrimSpace(input.MFAToken) == "" || strings.TrimSpace(input.Code) == "" {
		return nil, ErrInvalidInput
	}
	userID, err := s.mfaTokens.ParseMFAToken(input.MFAToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	secret, err := s.mfaSecrets.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("find mfa secret: %w", err)
	}
	if secret == nil || secret.EnabledAt == nil {
		return nil, ErrMFARequired
	}
	if !s.mfaProvider.ValidateCode(secret.Secret, input.Code, s.now()) {
		s.logSecurity(ctx, &user.ID, nil, input.Meta.IPAddress, entity.MFAFailed, deviceMetadata(input.Meta))
		return nil, ErrInvalidMFACode
	}

	result, err := s.createSessionAndTokens(ctx, user, input.Meta)
	if err != nil {
		return nil, err
	}
	s.logSecurity(ctx, &user.ID, &result.SessionID, input.Meta.IPAddress, entity.LoginSuccess, map[string]any{"mfa": true})
	return result, nil
}

// EnableMFA stores a fresh, not yet enabled seed and returns its enrollment
// URL. The seed only takes effect after VerifyMFA.
func (s *AuthService) EnableMFA(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.mfaProvider == nil || s.mfaSecrets == nil {
		return "", ErrMFANotConfigured
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	secret, url, err := s.mfaProvider.GenerateSecret(user.Email)
	if err != nil {
		return "", err
	}

	mfaSecret := &entity.MFASecret{
		UserID: user.ID,
		Secret: secret,
	}
	if err := s.mfaSecrets.Upsert(ctx, mfaSecret); err != nil {
		return "", fmt.Errorf("store mfa secret: %w", err)
	}
	return url, nil
}

func (s *AuthService) VerifyMFA(ctx context.Context, userID uuid.UUID, code string) error {
	if s.mfaProvider == nil || s.mfaSecrets == nil {
		return ErrMFANotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return ErrInvalidInput
	}
	secret, err := s.mfaSecrets.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find mfa secret: %w", err)
	}
	if secret == nil {
		return ErrMFARequired
	}
	now := s.now()
	if !s.mfaProvider.ValidateCode(secret.Secret, code, now) {
		return ErrInvalidMFACode
	}

	secret.EnabledAt = &now
	return s.mfaSecrets.Upsert(ctx, secret)
}

func (s *AuthService) DisableMFA(ctx context.Context, userID uuid.UUID) error {
	if s.mfaSecrets == nil {
		return nil
	}
	return s.mfaSecrets.Disable(ctx, userID)
}

// RequestPasswordReset mails a one-time reset token. Unknown addresses
// succeed silently so the endpoint cannot be used to probe accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrInvalidInput
	}
	if s.resetTokens == nil {
		return ErrInvalidToken
	}

	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil
	}

	rawToken, err := utils.GenerateRandomToken(32)
	if err != nil {
		return err
	}
	token := &entity.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(rawToken),
		ExpiresAt: s.now().Add(s.resetTokenTTL()),
	}
	if err := s.resetTokens.Create(ctx, token); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}

	if s.resetSender != nil {
		if err := s.resetSender.SendPasswordResetEmail(ctx, user.Email, rawToken); err != nil {
			return fmt.Errorf("send reset email: %w", err)
		}
	}
	return nil
}

// ResetPassword consumes a reset token, stores the new password and closes
// every session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(newPassword) == "" {
		return ErrInvalidInput
	}
	if s.resetTokens == nil {
		return ErrInvalidToken
	}

	now := s.now()
	reset, err := s.resetTokens.FindValid(ctx, utils.HashToken(token), now)
	if err != nil {
		return fmt.Errorf("find reset token: %w", err)
	}
	if reset == nil {
		return ErrInvalidToken
	}
	if err := s.resetTokens.MarkUsed(ctx, reset.ID, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	user, err := s.users.FindByID(ctx, reset.UserID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	hash, err := s.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.sessions.UpdateManyByUser(ctx, user.ID, s.revocation())
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	s.logSecurity(ctx, &user.ID, nil, nil, entity.PasswordReset, map[string]any{"sessions": revoked})
	return nil
}
