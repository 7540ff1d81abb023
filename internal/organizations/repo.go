package organizations

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
)

// ErrAmbiguousDomain means more than one organization claims a domain.
var ErrAmbiguousDomain = errors.New("domain is mapped to more than one organization")

// Repository reads and writes organizations, their domains, and initiatives.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads an organization by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// FindBySlug loads an organization by its unique slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.WithContext(ctx).
		Where("slug = ?", strings.ToLower(strings.TrimSpace(slug))).
		First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// LookupDomain resolves a lowercase domain to its organization. It returns
// gorm.ErrRecordNotFound when nothing matches and ErrAmbiguousDomain when more
// than one organization claims the domain.
func (r *Repository) LookupDomain(ctx context.Context, domain string) (*models.Organization, error) {
	var mappings []models.OrganizationDomain
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		Limit(2).
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	switch len(mappings) {
	case 0:
		return nil, gorm.ErrRecordNotFound
	case 1:
		return r.FindByID(ctx, mappings[0].OrganizationID)
	default:
		return nil, ErrAmbiguousDomain
	}
}

// ListDomains returns the domains owned by an organization, sorted.
func (r *Repository) ListDomains(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	var domains []string
	err := r.db.WithContext(ctx).
		Model(&models.OrganizationDomain{}).
		Where("organization_id = ?", orgID).
		Order("domain ASC").
		Pluck("domain", &domains).Error
	if err != nil {
		return nil, err
	}
	return domains, nil
}

// HasDomain reports whether domain belongs to the organization.
func (r *Repository) HasDomain(ctx context.Context, orgID uuid.UUID, domain string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrganizationDomain{}).
		Where("organization_id = ? AND domain = ?", orgID, domain).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListInitiatives returns an organization's initiatives ordered by name.
func (r *Repository) ListInitiatives(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]models.Initiative, error) {
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var initiatives []models.Initiative
	if err := query.Order("name ASC").Find(&initiatives).Error; err != nil {
		return nil, err
	}
	return initiatives, nil
}

// FindInitiative loads an initiative scoped to its organization.
func (r *Repository) FindInitiative(ctx context.Context, orgID, initiativeID uuid.UUID) (*models.Initiative, error) {
	var initiative models.Initiative
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", initiativeID, orgID).
		First(&initiative).Error
	if err != nil {
		return nil, err
	}
	return &initiative, nil
}

// CreateInitiative persists a new initiative.
func (r *Repository) CreateInitiative(ctx context.Context, initiative *models.Initiative) error {
	return r.db.WithContext(ctx).Create(initiative).Error
}

// Create persists a new organization.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

// AddDomain maps a domain to the organization.
func (r *Repository) AddDomain(ctx context.Context, orgID uuid.UUID, domain string) (*models.OrganizationDomain, error) {
	mapping := &models.OrganizationDomain{
		OrganizationID: orgID,
		Domain:         strings.ToLower(strings.TrimSpace(domain)),
	}
	if err := r.db.WithContext(ctx).Create(mapping).Error; err != nil {
		return nil, err
	}
	return mapping, nil
}

// SetSelfRegistration toggles whether the organization accepts self sign-ups.
// SetLogoPath stores the logo object name; nil clears it.
func (r *Repository) SetLogoPath(ctx context.Context, orgID uuid.UUID, logoPath *string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", orgID).
		Update("logo_path", logoPath)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) SetSelfRegistration(ctx context.Context, orgID uuid.UUID, allowed bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", orgID).
		Update("allow_self_registration", allowed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
