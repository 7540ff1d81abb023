package organizations

import (
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
)

// NotRegisteredMessage is returned when no organization owns an e-mail domain.
const NotRegisteredMessage = "No organization is registered for this email domain. Please contact support."

// SelfRegistrationDisabledMessage accompanies organizations that only admit invited users.
const SelfRegistrationDisabledMessage = "This organization does not allow self-registration. Please ask an administrator for an invitation."

// Summary is the public view of an organization.
type Summary struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Slug                  string    `json:"slug"`
	AllowSelfRegistration bool      `json:"allow_self_registration"`
	LogoURL               *string   `json:"logo_url,omitempty"`
}

// SummaryFromModel maps an organization row without a logo URL.
func SummaryFromModel(m *models.Organization) Summary {
	return Summary{
		ID:                    m.ID,
		Name:                  m.Name,
		Slug:                  m.Slug,
		AllowSelfRegistration: m.AllowSelfRegistration,
	}
}

// ResolveResult is the outcome of resolving an e-mail to an organization.
type ResolveResult struct {
	Email                   string   `json:"email"`
	Domain                  string   `json:"domain"`
	ExistingUser            bool     `json:"existing_user"`
	IsInternal              bool     `json:"is_internal"`
	Organization            *Summary `json:"organization,omitempty"`
	SelfRegistrationAllowed bool     `json:"self_registration_allowed"`
	Message                 string   `json:"message,omitempty"`
}

// NotFoundDetails is attached to the 404 raised for unknown domains.
type NotFoundDetails struct {
	Email        string `json:"email"`
	Domain       string `json:"domain"`
	ExistingUser bool   `json:"existing_user"`
}

// DomainsResponse lists the e-mail domains owned by an organization.
type DomainsResponse struct {
	Domains []string `json:"domains"`
}

// InitiativeDTO is the API view of an initiative.
type InitiativeDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func InitiativeFromModel(m models.Initiative) InitiativeDTO {
	return InitiativeDTO{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
}

// CreateInitiativeInput is the payload for adding an initiative.
type CreateInitiativeInput struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}
