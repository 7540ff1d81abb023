package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// Invitation tracks an offer of membership. AcceptedAt nil means pending.
type Invitation struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Email          string                `gorm:"column:email;not null;index:idx_invitations_email_org,priority:1"`
	OrganizationID uuid.UUID             `gorm:"column:organization_id;type:uuid;not null;index:idx_invitations_email_org,priority:2"`
	Role           enums.Role            `gorm:"column:role;type:text;not null"`
	SapiraRoleType *enums.SapiraRoleType `gorm:"column:sapira_role_type;type:text"`
	BusinessUnitID *uuid.UUID            `gorm:"column:business_unit_id;type:uuid"`
	InvitedBy      *uuid.UUID            `gorm:"column:invited_by;type:uuid"`
	ExpiresAt      time.Time             `gorm:"column:expires_at;not null"`
	AcceptedAt     *time.Time            `gorm:"column:accepted_at"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (i *Invitation) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
