package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenModel mirrors the 'refresh_tokens' table. The used flag and
// revoked_at column are only ever set, never cleared.
type RefreshTokenModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	IdentityID uuid.UUID `gorm:"type:uuid;not null;index"`
	TokenHash  string    `gorm:"type:varchar(255);unique;not null"`
	Used       bool      `gorm:"not null;default:false"`
	ExpiresAt  time.Time `gorm:"not null"`
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// TableName explicitly sets the table name for GORM.
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}
