package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuthIdentity is the credential record behind every user. Invited identities
// have no password until they complete sign-up.
type AuthIdentity struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Email            string            `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash     *string           `gorm:"column:password_hash"`
	EmailConfirmedAt *time.Time        `gorm:"column:email_confirmed_at"`
	InvitedAt        *time.Time        `gorm:"column:invited_at"`
	LastSignInAt     *time.Time        `gorm:"column:last_sign_in_at"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (AuthIdentity) TableName() string {
	return "auth_identities"
}

func (a *AuthIdentity) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// MetadataString reads a string value from the identity metadata.
func (a AuthIdentity) MetadataString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[key].(string); ok {
		return v
	}
	return ""
}
