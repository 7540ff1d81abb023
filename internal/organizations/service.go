package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
)

const defaultLogoURLExpiry = 7 * 24 * time.Hour

// Service exposes organization resolution and lookups.
type Service interface {
	Resolve(ctx context.Context, email string) (*ResolveResult, error)
	GetBySlug(ctx context.Context, slug string) (*Summary, error)
	Domains(ctx context.Context, slug string) (*DomainsResponse, error)
	Initiatives(ctx context.Context, slug string) ([]InitiativeDTO, error)
	CreateInitiative(ctx context.Context, orgID uuid.UUID, input CreateInitiativeInput) (*InitiativeDTO, error)
}

type orgRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindBySlug(ctx context.Context, slug string) (*models.Organization, error)
	LookupDomain(ctx context.Context, domain string) (*models.Organization, error)
	ListDomains(ctx context.Context, orgID uuid.UUID) ([]string, error)
	ListInitiatives(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]models.Initiative, error)
	CreateInitiative(ctx context.Context, initiative *models.Initiative) error
}

type userDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// LogoSigner turns a stored logo path into a time-limited read URL.
type LogoSigner interface {
	SignedReadURL(ctx context.Context, object string, expires time.Duration) (string, error)
}

// ServiceParams bundles the dependencies of the organization service.
type ServiceParams struct {
	Repo           orgRepository
	Users          userDirectory
	Logos          LogoSigner
	InternalDomain string
	LogoURLExpiry  time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.FlowMetrics
}

type service struct {
	repo           orgRepository
	users          userDirectory
	logos          LogoSigner
	internalDomain string
	logoExpiry     time.Duration
	logg           *logger.Logger
	metrics        *metrics.FlowMetrics
}

// NewService validates params and builds the organization service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("organization repository is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	expiry := params.LogoURLExpiry
	if expiry <= 0 {
		expiry = defaultLogoURLExpiry
	}
	return &service{
		repo:           params.Repo,
		users:          params.Users,
		logos:          params.Logos,
		internalDomain: strings.ToLower(strings.TrimSpace(params.InternalDomain)),
		logoExpiry:     expiry,
		logg:           params.Logger,
		metrics:        params.Metrics,
	}, nil
}

func (s *service) Resolve(ctx context.Context, email string) (*ResolveResult, error) {
	domain, err := ExtractDomain(email)
	if err != nil {
		s.metrics.Outcome(metrics.FlowResolve, "invalid")
		return nil, err
	}
	email = NormalizeEmail(email)

	existing, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing user")
	}

	result := &ResolveResult{
		Email:        email,
		Domain:       domain,
		ExistingUser: existing,
	}

	if s.internalDomain != "" && domain == s.internalDomain {
		result.IsInternal = true
		s.metrics.Outcome(metrics.FlowResolve, "internal")
		return result, nil
	}

	org, err := s.repo.LookupDomain(ctx, domain)
	switch {
	case err == nil:
	case db.IsNotFound(err):
		s.metrics.Outcome(metrics.FlowResolve, "not_found")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, NotRegisteredMessage).WithDetails(NotFoundDetails{
			Email:        email,
			Domain:       domain,
			ExistingUser: existing,
		})
	case errors.Is(err, ErrAmbiguousDomain):
		s.logg.Error(s.logg.WithField(ctx, "domain", domain), "organizations.resolve.ambiguous_domain", err)
		s.metrics.Outcome(metrics.FlowResolve, "ambiguous")
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email domain is claimed by more than one organization")
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup email domain")
	}

	summary := s.summarize(ctx, org)
	result.Organization = &summary
	result.SelfRegistrationAllowed = org.AllowSelfRegistration
	if !org.AllowSelfRegistration {
		result.Message = SelfRegistrationDisabledMessage
	}
	s.metrics.Outcome(metrics.FlowResolve, "found")
	return result, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*Summary, error) {
	org, err := s.findBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	summary := s.summarize(ctx, org)
	return &summary, nil
}

func (s *service) Domains(ctx context.Context, slug string) (*DomainsResponse, error) {
	org, err := s.findBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	domains, err := s.repo.ListDomains(ctx, org.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organization domains")
	}
	if domains == nil {
		domains = []string{}
	}
	return &DomainsResponse{Domains: domains}, nil
}

func (s *service) Initiatives(ctx context.Context, slug string) ([]InitiativeDTO, error) {
	org, err := s.findBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListInitiatives(ctx, org.ID, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list initiatives")
	}
	out := make([]InitiativeDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, InitiativeFromModel(row))
	}
	return out, nil
}

func (s *service) CreateInitiative(ctx context.Context, orgID uuid.UUID, input CreateInitiativeInput) (*InitiativeDTO, error) {
	initiative, err := newInitiative(orgID, input)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByID(ctx, orgID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}

	if err := s.repo.CreateInitiative(ctx, initiative); err != nil {
		return nil, initiativeCreateError(err)
	}
	dto := InitiativeFromModel(*initiative)
	return &dto, nil
}

// newInitiative validates input and derives the organization-scoped slug.
func newInitiative(orgID uuid.UUID, input CreateInitiativeInput) (*models.Initiative, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	initiativeSlug := slug.Make(name)
	if initiativeSlug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must contain letters or digits")
	}

	var description *string
	if input.Description != nil {
		if trimmed := strings.TrimSpace(*input.Description); trimmed != "" {
			description = &trimmed
		}
	}

	return &models.Initiative{
		OrganizationID: orgID,
		Name:           name,
		Slug:           initiativeSlug,
		Description:    description,
		Active:         true,
	}, nil
}

func initiativeCreateError(err error) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an initiative with this name already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create initiative")
}

func (s *service) findBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	org, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org, nil
}

// summarize maps org and attaches a signed logo URL when one can be produced.
func (s *service) summarize(ctx context.Context, org *models.Organization) Summary {
	summary := SummaryFromModel(org)
	if org.LogoPath == nil || strings.TrimSpace(*org.LogoPath) == "" || s.logos == nil {
		return summary
	}
	url, err := s.logos.SignedReadURL(ctx, strings.TrimSpace(*org.LogoPath), s.logoExpiry)
	if err != nil {
		s.logg.WarnErr(s.logg.WithField(ctx, "organization_id", org.ID.String()), "organizations.logo.sign_failed", err)
		s.metrics.Swallowed(metrics.FlowSignedLogos, "sign")
		return summary
	}
	summary.LogoURL = &url
	return summary
}
