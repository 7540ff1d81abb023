package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/internal/users"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is a freshly minted access token and its refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse contains the tokens, user, and organizations produced by a successful login.
type LoginResponse struct {
	TokenPair
	User                   *users.UserDTO                           `json:"user,omitempty"`
	Organizations          []memberships.MembershipWithOrganization `json:"organizations"`
	ActiveOrganizationID   *uuid.UUID                               `json:"active_organization_id,omitempty"`
	ActiveOrganizationSlug string                                   `json:"active_organization_slug,omitempty"`
	RedirectTo             string                                   `json:"redirect_to"`
}

// CodeSession is the session created by exchanging a one-time auth code.
type CodeSession struct {
	TokenPair
	UserID uuid.UUID
	Email  string
}

// RegisterRequest is the self-service signup payload. Fields are validated in
// a fixed order by the service, so they carry no tag constraints.
type RegisterRequest struct {
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	OrgSlug        string  `json:"org_slug"`
	Role           string  `json:"role"`
	BusinessUnitID *string `json:"business_unit_id,omitempty"`
}

// RegisterResponse describes the account created by a signup.
type RegisterResponse struct {
	User         *users.UserDTO             `json:"user"`
	Organization organizations.Summary      `json:"organization"`
	Membership   *memberships.MembershipDTO `json:"membership"`
}

// InviteRequest is the payload accepted by the invitation endpoint.
type InviteRequest struct {
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	BusinessUnitID *string `json:"business_unit_id,omitempty"`
	SapiraRoleType *string `json:"sapira_role_type,omitempty"`
}

// Inviter identifies the authenticated caller issuing an invitation.
type Inviter struct {
	UserID uuid.UUID
	Email  string
}

// InviteResponse confirms an issued invitation.
type InviteResponse struct {
	Email          string     `json:"email"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Role           enums.Role `json:"role"`
	BusinessUnitID *uuid.UUID `json:"business_unit_id,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// AcceptInput carries the caller's side of an acceptance. OrganizationID only
// selects which granted organization to join and falls back to the identity
// metadata; role and initiative always come from the grant. A non-empty
// Password is stored on the identity so invitees can sign in later.
type AcceptInput struct {
	UserID         uuid.UUID `json:"-"`
	OrganizationID string    `json:"organization_id" validate:"omitempty,uuid"`
	Password       string    `json:"password,omitempty" validate:"omitempty,min=6,max=256"`
}

// AcceptResult tells the caller where to send the user next.
type AcceptResult struct {
	RedirectTo       string      `json:"redirect_to"`
	OrganizationSlug *string     `json:"organization_slug,omitempty"`
	OrganizationID   *uuid.UUID  `json:"organization_id,omitempty"`
	Role             *enums.Role `json:"role,omitempty"`
}
