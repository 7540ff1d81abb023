package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/internal/identities"
	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/internal/users"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

const (
	minPasswordLength     = 6
	emailRegisteredReason = "email already registered"
)

// RegisterService handles the self-service signup transaction.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
}

type registerOrgReader interface {
	FindBySlug(ctx context.Context, slug string) (*models.Organization, error)
	FindInitiative(ctx context.Context, orgID, initiativeID uuid.UUID) (*models.Initiative, error)
	HasDomain(ctx context.Context, orgID uuid.UUID, domain string) (bool, error)
}

type registerIdentityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error)
	Create(ctx context.Context, dto identities.CreateIdentityDTO) (*models.AuthIdentity, error)
}

type registerUserRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

type registerMembershipRepository interface {
	Upsert(ctx context.Context, params memberships.UpsertParams) (*models.UserOrganization, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
// Repository factories receive the transaction handle; nil factories default
// to the gorm-backed repositories.
type RegisterServiceParams struct {
	TxRunner              db.TxRunner
	Organizations         registerOrgReader
	IdentityRepoFactory   func(tx *gorm.DB) registerIdentityRepository
	UserRepoFactory       func(tx *gorm.DB) registerUserRepository
	MembershipRepoFactory func(tx *gorm.DB) registerMembershipRepository
	PasswordConfig        config.PasswordConfig
	Metrics               *metrics.FlowMetrics
	Now                   func() time.Time
}

type registerService struct {
	tx             db.TxRunner
	orgs           registerOrgReader
	identityRepoFn func(tx *gorm.DB) registerIdentityRepository
	userRepoFn     func(tx *gorm.DB) registerUserRepository
	memberRepoFn   func(tx *gorm.DB) registerMembershipRepository
	passwordCfg    config.PasswordConfig
	metrics        *metrics.FlowMetrics
	now            func() time.Time
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Organizations == nil {
		return nil, fmt.Errorf("organization reader is required")
	}
	svc := &registerService{
		tx:             params.TxRunner,
		orgs:           params.Organizations,
		identityRepoFn: params.IdentityRepoFactory,
		userRepoFn:     params.UserRepoFactory,
		memberRepoFn:   params.MembershipRepoFactory,
		passwordCfg:    params.PasswordConfig,
		metrics:        params.Metrics,
		now:            params.Now,
	}
	if svc.identityRepoFn == nil {
		svc.identityRepoFn = func(tx *gorm.DB) registerIdentityRepository { return identities.NewRepository(tx) }
	}
	if svc.userRepoFn == nil {
		svc.userRepoFn = func(tx *gorm.DB) registerUserRepository { return users.NewRepository(tx) }
	}
	if svc.memberRepoFn == nil {
		svc.memberRepoFn = func(tx *gorm.DB) registerMembershipRepository { return memberships.NewRepository(tx) }
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := s.register(ctx, req)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.Outcome(metrics.FlowRegister, strings.ToLower(string(typed.Code())))
		}
		return nil, err
	}
	s.metrics.Outcome(metrics.FlowRegister, "created")
	return resp, nil
}

func (s *registerService) register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	rawRole := strings.ToUpper(strings.TrimSpace(req.Role))
	if rawRole == string(enums.RoleSAP) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "this role cannot be self-assigned")
	}

	email := organizations.NormalizeEmail(req.Email)
	domain, err := organizations.ExtractDomain(email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < s.minPasswordLength() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "password must be at least %d characters", s.minPasswordLength())
	}
	slug := strings.TrimSpace(req.OrgSlug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org_slug is required")
	}

	org, err := s.orgs.FindBySlug(ctx, slug)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	if !org.AllowSelfRegistration {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "this organization does not allow self-registration")
	}

	role, err := enums.ParseRole(rawRole)
	if err != nil || !role.SelfRegistrable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be one of CEO, BU, EMP")
	}

	var initiativeID *uuid.UUID
	if role.RequiresInitiative() {
		id, err := s.validateBusinessUnit(ctx, org.ID, req.BusinessUnitID)
		if err != nil {
			return nil, err
		}
		initiativeID = &id
	}

	owned, err := s.orgs.HasDomain(ctx, org.ID, domain)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organization domain")
	}
	if !owned {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "email domain does not belong to this organization")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	now := s.now().UTC()
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	metadata := map[string]any{
		"organization_id": org.ID.String(),
		"role":            string(role),
	}
	if firstName != "" {
		metadata["first_name"] = firstName
	}
	if lastName != "" {
		metadata["last_name"] = lastName
	}
	if initiativeID != nil {
		metadata["business_unit_id"] = initiativeID.String()
	}

	resp := &RegisterResponse{Organization: organizations.SummaryFromModel(org)}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		identityRepo := s.identityRepoFn(tx)
		userRepo := s.userRepoFn(tx)
		memberRepo := s.memberRepoFn(tx)

		if _, err := identityRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, emailRegisteredReason)
		} else if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check identity email")
		}

		identity, err := identityRepo.Create(ctx, identities.CreateIdentityDTO{
			Email:            email,
			PasswordHash:     &passwordHash,
			EmailConfirmedAt: &now,
			Metadata:         metadata,
		})
		if err != nil {
			return wrapRegisterWrite(err, "create identity")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			ID:             identity.ID,
			Email:          email,
			FirstName:      firstName,
			LastName:       lastName,
			OrganizationID: &org.ID,
			Role:           &role,
		})
		if err != nil {
			return wrapRegisterWrite(err, "create user")
		}

		membership, err := memberRepo.Upsert(ctx, memberships.UpsertParams{
			UserID:         identity.ID,
			OrganizationID: org.ID,
			Role:           role,
			InitiativeID:   initiativeID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create membership")
		}

		resp.User = users.FromModel(user)
		resp.Membership = memberships.ToDTO(membership)
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register")
		}
		return nil, err
	}
	return resp, nil
}

func (s *registerService) validateBusinessUnit(ctx context.Context, orgID uuid.UUID, raw *string) (uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "business_unit_id is required for role BU")
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "business_unit_id is invalid")
	}
	if _, err := s.orgs.FindInitiative(ctx, orgID, id); err != nil {
		if db.IsNotFound(err) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "business_unit_id does not belong to this organization")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load initiative")
	}
	return id, nil
}

func (s *registerService) minPasswordLength() int {
	if s.passwordCfg.MinLength > minPasswordLength {
		return s.passwordCfg.MinLength
	}
	return minPasswordLength
}

// wrapRegisterWrite maps a concurrent duplicate signup to a conflict.
func wrapRegisterWrite(err error, action string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, emailRegisteredReason)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}
