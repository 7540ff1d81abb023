// Package invitations records membership offers and their acceptance.
package invitations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// InvitationDTO is the API view of a pending invitation.
type InvitationDTO struct {
	ID             uuid.UUID             `json:"id"`
	Email          string                `json:"email"`
	Role           enums.Role            `json:"role"`
	SapiraRoleType *enums.SapiraRoleType `json:"sapira_role_type,omitempty"`
	BusinessUnitID *uuid.UUID            `json:"business_unit_id,omitempty"`
	InvitedBy      *uuid.UUID            `json:"invited_by,omitempty"`
	ExpiresAt      time.Time             `json:"expires_at"`
	CreatedAt      time.Time             `json:"created_at"`
}

func FromModel(m models.Invitation) InvitationDTO {
	return InvitationDTO{
		ID:             m.ID,
		Email:          m.Email,
		Role:           m.Role,
		SapiraRoleType: m.SapiraRoleType,
		BusinessUnitID: m.BusinessUnitID,
		InvitedBy:      m.InvitedBy,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
	}
}

// Repository persists invitations.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create records a new invitation.
func (r *Repository) Create(ctx context.Context, invitation *models.Invitation) error {
	invitation.Email = normalizeEmail(invitation.Email)
	return r.db.WithContext(ctx).Create(invitation).Error
}

// FindNewestPending returns the most recent unaccepted invitation for the
// e-mail within the organization.
func (r *Repository) FindNewestPending(ctx context.Context, email string, orgID uuid.UUID) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.db.WithContext(ctx).
		Where("email = ? AND organization_id = ? AND accepted_at IS NULL", normalizeEmail(email), orgID).
		Order("created_at DESC").
		First(&invitation).Error
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

// MarkAccepted stamps every pending invitation for the e-mail within the
// organization and returns how many rows changed.
func (r *Repository) MarkAccepted(ctx context.Context, email string, orgID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("email = ? AND organization_id = ? AND accepted_at IS NULL", normalizeEmail(email), orgID).
		Update("accepted_at", at)
	return res.RowsAffected, res.Error
}

// ListPending returns unexpired, unaccepted invitations for an organization.
func (r *Repository) ListPending(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.Invitation, error) {
	var rows []models.Invitation
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND accepted_at IS NULL AND expires_at > ?", orgID, now).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
