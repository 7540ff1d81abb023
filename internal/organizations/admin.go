package organizations

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

// CreateOrganizationInput describes an organization provisioned out-of-band.
// LogoPath is an object name in the logo bucket.
type CreateOrganizationInput struct {
	Name                  string
	Slug                  string
	AllowSelfRegistration bool
	LogoPath              string
	Domains               []string
}

// Admin provisions organizations, domains and initiatives for operators.
// Organizations are never created through the public API.
type Admin struct {
	client *db.Client
	repo   *Repository
	logg   *logger.Logger
}

func NewAdmin(client *db.Client, logg *logger.Logger) *Admin {
	return &Admin{client: client, repo: NewRepository(client.DB()), logg: logg}
}

// CreateOrganization inserts the organization and its domains atomically.
// The slug is derived from the name unless given explicitly.
func (a *Admin) CreateOrganization(ctx context.Context, input CreateOrganizationInput) (*models.Organization, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	source := input.Slug
	if strings.TrimSpace(source) == "" {
		source = name
	}
	orgSlug := slug.Make(source)
	if orgSlug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must contain letters or digits")
	}

	domains := make([]string, 0, len(input.Domains))
	for _, raw := range input.Domains {
		d, err := NormalizeDomain(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid domain").
				WithDetails(map[string]any{"domain": raw})
		}
		domains = append(domains, d)
	}

	org := &models.Organization{
		Name:                  name,
		Slug:                  orgSlug,
		AllowSelfRegistration: input.AllowSelfRegistration,
		LogoPath:              normalizeLogoPath(input.LogoPath),
	}
	err := a.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := repo.Create(ctx, org); err != nil {
			return err
		}
		for _, d := range domains {
			if _, err := repo.AddDomain(ctx, org.ID, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "organization slug or domain already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create organization")
	}

	a.logg.Info(a.logg.WithFields(ctx, map[string]any{
		"organization_id": org.ID.String(),
		"slug":            org.Slug,
		"domains":         len(domains),
	}), "organization created")
	return org, nil
}

// AddDomain maps another e-mail domain to the organization.
func (a *Admin) AddDomain(ctx context.Context, orgSlug, domain string) (*models.OrganizationDomain, error) {
	org, err := a.find(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	mapping, err := a.repo.AddDomain(ctx, org.ID, d)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "domain already registered").
				WithDetails(map[string]any{"domain": d})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add domain")
	}
	return mapping, nil
}

func (a *Admin) SetSelfRegistration(ctx context.Context, orgSlug string, allowed bool) error {
	org, err := a.find(ctx, orgSlug)
	if err != nil {
		return err
	}
	if err := a.repo.SetSelfRegistration(ctx, org.ID, allowed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update organization")
	}
	return nil
}

// SetLogo points the organization at an object in the logo bucket. An empty
// path removes the logo.
func (a *Admin) SetLogo(ctx context.Context, orgSlug, logoPath string) error {
	org, err := a.find(ctx, orgSlug)
	if err != nil {
		return err
	}
	if err := a.repo.SetLogoPath(ctx, org.ID, normalizeLogoPath(logoPath)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update organization logo")
	}
	return nil
}

func (a *Admin) AddInitiative(ctx context.Context, orgSlug string, input CreateInitiativeInput) (*InitiativeDTO, error) {
	org, err := a.find(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	initiative, err := newInitiative(org.ID, input)
	if err != nil {
		return nil, err
	}
	if err := a.repo.CreateInitiative(ctx, initiative); err != nil {
		return nil, initiativeCreateError(err)
	}
	dto := InitiativeFromModel(*initiative)
	return &dto, nil
}

func (a *Admin) find(ctx context.Context, orgSlug string) (*models.Organization, error) {
	org, err := a.repo.FindBySlug(ctx, strings.TrimSpace(orgSlug))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found").
				WithDetails(map[string]any{"slug": orgSlug})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org, nil
}

// normalizeLogoPath strips surrounding space and leading slashes so the value
// is a bucket object name; gs://bucket/ prefixes are dropped as well.
func normalizeLogoPath(raw string) *string {
	p := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(p, "gs://"); ok {
		_, p, _ = strings.Cut(rest, "/")
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return nil
	}
	return &p
}
