package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionModel mirrors the 'sessions' table. RefreshTokenID tracks the
// current head of the session's rotation chain.
type SessionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	IdentityID     uuid.UUID `gorm:"type:uuid;not null;index"`
	RefreshTokenID uuid.UUID `gorm:"type:uuid;not null;index"`
	DeviceID       string    `gorm:"type:varchar(255)"`
	UserAgent      string    `gorm:"type:varchar(500)"`
	IPAddress      string    `gorm:"type:varchar(45)"`
	ExpiresAt      time.Time `gorm:"not null"`
	CreatedAt      time.Time
	LastUsedAt     time.Time
}

// TableName explicitly sets the table name for GORM.
func (SessionModel) TableName() string {
	return "sessions"
}
