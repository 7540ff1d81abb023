package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Organization is a tenant. Organizations are created out-of-band.
type Organization struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name                  string            `gorm:"column:name;not null"`
	Slug                  string            `gorm:"column:slug;not null;uniqueIndex"`
	AllowSelfRegistration bool              `gorm:"column:allow_self_registration;not null;default:false"`
	LogoPath              *string           `gorm:"column:logo_path"`
	Settings              datatypes.JSONMap `gorm:"column:settings;type:jsonb"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrganizationDomain maps an e-mail domain to its owning organization.
type OrganizationDomain struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	Domain         string    `gorm:"column:domain;not null;uniqueIndex"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (d *OrganizationDomain) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Initiative is a business unit inside an organization.
type Initiative struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:idx_initiatives_org_slug,priority:1"`
	Name           string    `gorm:"column:name;not null"`
	Slug           string    `gorm:"column:slug;not null;uniqueIndex:idx_initiatives_org_slug,priority:2"`
	Description    *string   `gorm:"column:description"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Initiative) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
