package model

import (
	"time"

	"github.com/google/uuid"
)

// RevokedTokenModel mirrors the 'revoked_tokens' table, the durable denylist
// of access-credential identifiers revoked before their natural expiry.
type RevokedTokenModel struct {
	TokenID   uuid.UUID `gorm:"type:uuid;primary_key"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (RevokedTokenModel) TableName() string {
	return "revoked_tokens"
}
