package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// UserOrganization binds a user to an organization with a role. At most one
// row exists per (auth_user_id, organization_id).
type UserOrganization struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AuthUserID     uuid.UUID             `gorm:"column:auth_user_id;type:uuid;not null;uniqueIndex:idx_user_organizations_user_org,priority:1"`
	OrganizationID uuid.UUID             `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:idx_user_organizations_user_org,priority:2"`
	Role           enums.Role            `gorm:"column:role;type:text;not null"`
	SapiraRoleType *enums.SapiraRoleType `gorm:"column:sapira_role_type;type:text"`
	InitiativeID   *uuid.UUID            `gorm:"column:initiative_id;type:uuid"`
	Active         bool                  `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *UserOrganization) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
