package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one authenticated client lifecycle. RefreshTokenHash holds the
// hash of the only refresh token currently accepted for it; nil once the
// session has been closed.
type Session struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`
	User   User      `gorm:"constraint:OnDelete:CASCADE"`

	RefreshTokenHash *string `gorm:"type:text;index"`

	Device    *string `gorm:"type:varchar(255)"`
	IPAddress *string `gorm:"type:varchar(45)"`
	UserAgent *string `gorm:"type:text"`

	ExpiresAt  time.Time `gorm:"not null"`
	LastUsedAt time.Time `gorm:"not null"`

	Revoked   bool `gorm:"not null;default:false;index"`
	RevokedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
