package enums

import (
	"fmt"
	"strings"
)

// Role is an organization-scoped permissions role.
type Role string

const (
	// RoleSAP is the privileged Sapira staff role; never self-assignable.
	RoleSAP Role = "SAP"
	RoleCEO Role = "CEO"
	// RoleBU is a business-unit lead and requires an initiative.
	RoleBU  Role = "BU"
	RoleEMP Role = "EMP"
)

var validRoles = []Role{
	RoleSAP,
	RoleCEO,
	RoleBU,
	RoleEMP,
}

var selfRegistrationRoles = []Role{
	RoleCEO,
	RoleBU,
	RoleEMP,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role may administer its organization.
func (r Role) IsAdmin() bool {
	return r == RoleSAP || r == RoleCEO
}

// RequiresInitiative reports whether memberships with this role must reference an initiative.
func (r Role) RequiresInitiative() bool {
	return r == RoleBU
}

// SelfRegistrable reports whether the role can be picked during self-service signup.
func (r Role) SelfRegistrable() bool {
	for _, candidate := range selfRegistrationRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role. Matching is case-insensitive.
func ParseRole(value string) (Role, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
