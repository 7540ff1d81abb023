package memberships

import (
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// MembershipDTO is the transport shape for a raw membership record.
type MembershipDTO struct {
	ID             uuid.UUID             `json:"id"`
	UserID         uuid.UUID             `json:"user_id"`
	OrganizationID uuid.UUID             `json:"organization_id"`
	Role           enums.Role            `json:"role"`
	SapiraRoleType *enums.SapiraRoleType `json:"sapira_role_type,omitempty"`
	InitiativeID   *uuid.UUID            `json:"initiative_id,omitempty"`
	Active         bool                  `json:"active"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// MembershipWithOrganization includes basic organization metadata + membership info.
type MembershipWithOrganization struct {
	MembershipID     uuid.UUID             `json:"membership_id"`
	OrganizationID   uuid.UUID             `json:"organization_id"`
	OrganizationName string                `json:"organization_name"`
	OrganizationSlug string                `json:"organization_slug"`
	Role             enums.Role            `json:"role"`
	SapiraRoleType   *enums.SapiraRoleType `json:"sapira_role_type,omitempty"`
	InitiativeID     *uuid.UUID            `json:"initiative_id,omitempty"`
}

// OrganizationUserDTO mixes membership metadata with the user profile for organization admins.
type OrganizationUserDTO struct {
	MembershipID   uuid.UUID             `json:"membership_id"`
	UserID         uuid.UUID             `json:"user_id"`
	Email          string                `json:"email"`
	FirstName      *string               `json:"first_name,omitempty"`
	LastName       *string               `json:"last_name,omitempty"`
	Role           enums.Role            `json:"role"`
	SapiraRoleType *enums.SapiraRoleType `json:"sapira_role_type,omitempty"`
	InitiativeID   *uuid.UUID            `json:"initiative_id,omitempty"`
	Active         bool                  `json:"active"`
	CreatedAt      time.Time             `json:"created_at"`
}

// UpsertParams describes the desired state of a membership.
type UpsertParams struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           enums.Role
	SapiraRoleType *enums.SapiraRoleType
	InitiativeID   *uuid.UUID
}

// ToDTO converts a model to the external DTO.
func ToDTO(m *models.UserOrganization) *MembershipDTO {
	if m == nil {
		return nil
	}
	return &MembershipDTO{
		ID:             m.ID,
		UserID:         m.AuthUserID,
		OrganizationID: m.OrganizationID,
		Role:           m.Role,
		SapiraRoleType: m.SapiraRoleType,
		InitiativeID:   copyUUIDPointer(m.InitiativeID),
		Active:         m.Active,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func copyUUIDPointer(src *uuid.UUID) *uuid.UUID {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}
