package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// User is the profile row; its ID equals the auth identity ID.
type User struct {
	ID             uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	Email          string      `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName      *string     `gorm:"column:first_name"`
	LastName       *string     `gorm:"column:last_name"`
	OrganizationID *uuid.UUID  `gorm:"column:organization_id;type:uuid"`
	Role           *enums.Role `gorm:"column:role;type:text"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
