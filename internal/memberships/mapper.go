package memberships

import (
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
)

type membershipWithOrganizationRow struct {
	models.UserOrganization
	OrganizationName string `gorm:"column:organization_name"`
	OrganizationSlug string `gorm:"column:organization_slug"`
}

type organizationUserRow struct {
	models.UserOrganization
	Email     string  `gorm:"column:email"`
	FirstName *string `gorm:"column:first_name"`
	LastName  *string `gorm:"column:last_name"`
}

func membershipWithOrganizationFromRow(row membershipWithOrganizationRow) MembershipWithOrganization {
	return MembershipWithOrganization{
		MembershipID:     row.ID,
		OrganizationID:   row.OrganizationID,
		OrganizationName: row.OrganizationName,
		OrganizationSlug: row.OrganizationSlug,
		Role:             row.Role,
		SapiraRoleType:   row.SapiraRoleType,
		InitiativeID:     copyUUIDPointer(row.InitiativeID),
	}
}

func membershipRowsToDTO(rows []membershipWithOrganizationRow) []MembershipWithOrganization {
	out := make([]MembershipWithOrganization, 0, len(rows))
	for _, row := range rows {
		out = append(out, membershipWithOrganizationFromRow(row))
	}
	return out
}

func organizationUsersFromRows(rows []organizationUserRow) []OrganizationUserDTO {
	out := make([]OrganizationUserDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, OrganizationUserDTO{
			MembershipID:   row.ID,
			UserID:         row.AuthUserID,
			Email:          row.Email,
			FirstName:      row.FirstName,
			LastName:       row.LastName,
			Role:           row.Role,
			SapiraRoleType: row.SapiraRoleType,
			InitiativeID:   copyUUIDPointer(row.InitiativeID),
			Active:         row.Active,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out
}
