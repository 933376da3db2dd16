package repository

import (
	"context"
	"errors"
	"time"

	"consultorio/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionUpdate is a partial write to a session row. Only the fields that
// are set end up in the UPDATE statement.
type SessionUpdate struct {
	RefreshTokenHash  *string
	ClearRefreshToken bool

	ExpiresAt  *time.Time
	LastUsedAt *time.Time

	Device    *string
	IPAddress *string
	UserAgent *string

	// RevokedAt closes the session at that instant. There is no way to
	// reopen it.
	RevokedAt *time.Time
}

func (u SessionUpdate) columns() map[string]any {
	values := make(map[string]any)
	if u.ClearRefreshToken {
		values["refresh_token_hash"] = nil
	} else if u.RefreshTokenHash != nil {
		values["refresh_token_hash"] = *u.RefreshTokenHash
	}
	if u.ExpiresAt != nil {
		values["expires_at"] = *u.ExpiresAt
	}
	if u.LastUsedAt != nil {
		values["last_used_at"] = *u.LastUsedAt
	}
	if u.Device != nil {
		values["device"] = *u.Device
	}
	if u.IPAddress != nil {
		values["ip_address"] = *u.IPAddress
	}
	if u.UserAgent != nil {
		values["user_agent"] = *u.UserAgent
	}
	if u.RevokedAt != nil {
		values["revoked"] = true
		values["revoked_at"] = *u.RevokedAt
	}
	return values
}

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	Update(ctx context.Context, id uuid.UUID, update SessionUpdate) error
	UpdateManyByUser(ctx context.Context, userID uuid.UUID, update SessionUpdate) (int64, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]entity.Session, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *entity.Session) error {
	return r.db.WithContext(ctx).Omit("User").Create(s).Error
}

func (r *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var session entity.Session
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Update(ctx context.Context, id uuid.UUID, update SessionUpdate) error {
	values := update.columns()
	if len(values) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&entity.Session{}).
		Where("id = ?", id).
		Updates(values).
		Error
}

func (r *sessionRepository) UpdateManyByUser(ctx context.Context, userID uuid.UUID, update SessionUpdate) (int64, error) {
	values := update.columns()
	if len(values) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entity.Session{}).
		Where("user_id = ?", userID).
		Updates(values)
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, time.Now().UTC()).
		Order("last_used_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
