package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID               uuid.UUID
	Email                string
	ActiveOrganizationID *uuid.UUID
	Role                 *enums.Role
	JTI                  string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID               uuid.UUID   `json:"user_id"`
	Email                string      `json:"email"`
	ActiveOrganizationID *uuid.UUID  `json:"active_organization_id,omitempty"`
	Role                 *enums.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Scoped reports whether the token carries an active organization.
func (c *AccessTokenClaims) Scoped() bool {
	return c != nil && c.ActiveOrganizationID != nil && c.Role != nil
}
