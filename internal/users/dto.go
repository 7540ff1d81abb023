package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// UserDTO is the transport shape of a profile row.
type UserDTO struct {
	ID             uuid.UUID   `json:"id"`
	Email          string      `json:"email"`
	FirstName      *string     `json:"first_name,omitempty"`
	LastName       *string     `json:"last_name,omitempty"`
	OrganizationID *uuid.UUID  `json:"organization_id,omitempty"`
	Role           *enums.Role `json:"role,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CreateUserDTO holds the data required to persist a profile.
type CreateUserDTO struct {
	ID             uuid.UUID
	Email          string
	FirstName      string
	LastName       string
	OrganizationID *uuid.UUID
	Role           *enums.Role
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		ID:             c.ID,
		Email:          c.Email,
		FirstName:      optionalString(c.FirstName),
		LastName:       optionalString(c.LastName),
		OrganizationID: c.OrganizationID,
		Role:           c.Role,
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
