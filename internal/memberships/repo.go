package memberships

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

var upsertColumns = []string{"active", "role", "sapira_role_type", "initiative_id", "updated_at"}

// Repository exposes membership persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert activates the membership for (user, organization) in one statement:
// a new row is inserted, or the existing row takes the provided role, sub-type
// and initiative. Concurrent callers converge on a single row.
func (r *Repository) Upsert(ctx context.Context, params UpsertParams) (*models.UserOrganization, error) {
	if !params.Role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", params.Role)
	}
	if params.SapiraRoleType != nil && !params.SapiraRoleType.IsValid() {
		return nil, fmt.Errorf("invalid sapira role type %q", *params.SapiraRoleType)
	}

	now := time.Now().UTC()
	membership := &models.UserOrganization{
		AuthUserID:     params.UserID,
		OrganizationID: params.OrganizationID,
		Role:           params.Role,
		SapiraRoleType: params.SapiraRoleType,
		InitiativeID:   params.InitiativeID,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "auth_user_id"}, {Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(membership).Error
	if err != nil {
		return nil, err
	}
	return r.GetMembership(ctx, params.UserID, params.OrganizationID)
}

// GetMembership retrieves a membership by user and organization regardless of state.
func (r *Repository) GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.UserOrganization, error) {
	var membership models.UserOrganization
	err := r.db.WithContext(ctx).
		Where("auth_user_id = ? AND organization_id = ?", userID, orgID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// FindActive retrieves the active membership for user and organization.
func (r *Repository) FindActive(ctx context.Context, userID, orgID uuid.UUID) (*models.UserOrganization, error) {
	var membership models.UserOrganization
	err := r.db.WithContext(ctx).
		Where("auth_user_id = ? AND organization_id = ? AND active = ?", userID, orgID, true).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// HasActiveMembership reports whether the user is an active member of the organization.
func (r *Repository) HasActiveMembership(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	return r.UserHasRole(ctx, userID, orgID, enums.RoleSAP, enums.RoleCEO, enums.RoleBU, enums.RoleEMP)
}

// IsOrgAdmin reports whether the user holds an active admin role in the organization.
func (r *Repository) IsOrgAdmin(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	return r.UserHasRole(ctx, userID, orgID, enums.RoleSAP, enums.RoleCEO)
}

// UserHasRole reports whether the user holds one of the provided roles through
// an active membership of the organization.
func (r *Repository) UserHasRole(ctx context.Context, userID, orgID uuid.UUID, roles ...enums.Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserOrganization{}).
		Where("auth_user_id = ? AND organization_id = ? AND active = ? AND role IN ?", userID, orgID, true, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUserOrganizations returns the active organizations a user belongs to.
func (r *Repository) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]MembershipWithOrganization, error) {
	var rows []membershipWithOrganizationRow
	err := r.db.WithContext(ctx).
		Model(&models.UserOrganization{}).
		Select("user_organizations.*, organizations.name AS organization_name, organizations.slug AS organization_slug").
		Joins("JOIN organizations ON organizations.id = user_organizations.organization_id").
		Where("user_organizations.auth_user_id = ? AND user_organizations.active = ?", userID, true).
		Order("organizations.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return membershipRowsToDTO(rows), nil
}

// ListOrganizationUsers returns memberships for the organization along with user metadata.
func (r *Repository) ListOrganizationUsers(ctx context.Context, orgID uuid.UUID) ([]OrganizationUserDTO, error) {
	var rows []organizationUserRow
	err := r.db.WithContext(ctx).
		Model(&models.UserOrganization{}).
		Select("user_organizations.*, users.email, users.first_name, users.last_name").
		Joins("JOIN users ON users.id = user_organizations.auth_user_id").
		Where("user_organizations.organization_id = ?", orgID).
		Order("user_organizations.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return organizationUsersFromRows(rows), nil
}
