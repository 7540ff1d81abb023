package enums

import (
	"fmt"
	"strings"
)

// SapiraRoleType refines the SAP role for Sapira staff.
type SapiraRoleType string

const (
	SapiraRoleFDE            SapiraRoleType = "FDE"
	SapiraRoleAdvisoryLead   SapiraRoleType = "ADVISORY_LEAD"
	SapiraRoleAccountManager SapiraRoleType = "ACCOUNT_MANAGER"
	SapiraRoleExecutive      SapiraRoleType = "EXECUTIVE"
)

var validSapiraRoleTypes = []SapiraRoleType{
	SapiraRoleFDE,
	SapiraRoleAdvisoryLead,
	SapiraRoleAccountManager,
	SapiraRoleExecutive,
}

// String implements fmt.Stringer.
func (s SapiraRoleType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SapiraRoleType.
func (s SapiraRoleType) IsValid() bool {
	for _, candidate := range validSapiraRoleTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSapiraRoleType converts raw input into a SapiraRoleType.
func ParseSapiraRoleType(value string) (SapiraRoleType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validSapiraRoleTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sapira role type %q", value)
}
