package repository

import (
	"context"
	"errors"
	"time"

	"consultorio/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResetTokenRepository interface {
	Create(ctx context.Context, token *entity.PasswordResetToken) error
	FindValid(ctx context.Context, tokenHash string, now time.Time) (*entity.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

type resetTokenRepository struct {
	db *gorm.DB
}

func NewResetTokenRepository(db *gorm.DB) ResetTokenRepository {
	return &resetTokenRepository{db: db}
}

func (r *resetTokenRepository) Create(ctx context.Context, t *entity.PasswordResetToken) error {
	return r.db.WithContext(ctx).Omit("User").Create(t).Error
}

func (r *resetTokenRepository) FindValid(ctx context.Context, tokenHash string, now time.Time) (*entity.PasswordResetToken, error) {
	var token entity.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
		First(&token).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// MarkUsed only succeeds once per token; a second call reports
// gorm.ErrRecordNotFound so two concurrent resets cannot both win.
func (r *resetTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entity.PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
