package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/internal/users"
	pkgAuth "github.com/sapira-ai/pharo-backend/pkg/auth"
	"github.com/sapira-ai/pharo-backend/pkg/auth/authcode"
	"github.com/sapira-ai/pharo-backend/pkg/auth/session"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Client-side routes the flows redirect to.
const (
	RouteHome               = "/"
	RouteSelectOrganization = "/select-organization"
	RouteLogin              = "/login"
)

// Service defines the session behavior needed by the auth controllers.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	ExchangeCode(ctx context.Context, code string) (*CodeSession, error)
}

type identityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.AuthIdentity, error)
	UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	ConfirmEmail(ctx context.Context, id uuid.UUID, at time.Time) error
}

type profileRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type membershipsRepository interface {
	ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]memberships.MembershipWithOrganization, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

type codeExchanger interface {
	Exchange(ctx context.Context, code string) (authcode.Grant, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	IdentityRepo    identityRepository
	UserRepo        profileRepository
	MembershipsRepo membershipsRepository
	SessionManager  sessionManager
	AuthCodes       codeExchanger
	JWTConfig       config.JWTConfig
	InternalDomain  string
	Logger          *logger.Logger
	Metrics         *metrics.FlowMetrics
	Now             func() time.Time
}

type service struct {
	identities     identityRepository
	users          profileRepository
	memberships    membershipsRepository
	session        sessionManager
	codes          codeExchanger
	jwtCfg         config.JWTConfig
	internalDomain string
	logg           *logger.Logger
	metrics        *metrics.FlowMetrics
	now            func() time.Time
}

// NewService constructs a session service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.IdentityRepo == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.MembershipsRepo == nil {
		return nil, fmt.Errorf("memberships repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.AuthCodes == nil {
		return nil, fmt.Errorf("auth code store is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		identities:     params.IdentityRepo,
		users:          params.UserRepo,
		memberships:    params.MembershipsRepo,
		session:        params.SessionManager,
		codes:          params.AuthCodes,
		jwtCfg:         params.JWTConfig,
		internalDomain: strings.ToLower(strings.TrimSpace(params.InternalDomain)),
		logg:           params.Logger,
		metrics:        params.Metrics,
		now:            now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	identity, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.metrics.Outcome(metrics.FlowLogin, "rejected")
		return nil, err
	}

	orgs, err := s.memberships.ListUserOrganizations(ctx, identity.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organizations")
	}
	internal := s.isInternal(identity.Email)
	if len(orgs) == 0 && !internal {
		s.metrics.Outcome(metrics.FlowLogin, "no_membership")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	var profile *models.User
	if p, err := s.users.FindByID(ctx, identity.ID); err == nil {
		profile = p
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}

	active := pickActiveOrganization(profile, orgs)

	now := s.now().UTC()
	if err := s.identities.UpdateLastSignIn(ctx, identity.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last sign in")
	}
	identity.LastSignInAt = &now

	payload := pkgAuth.AccessTokenPayload{UserID: identity.ID, Email: identity.Email}
	resp := &LoginResponse{
		User:          users.FromModel(profile),
		Organizations: orgs,
		RedirectTo:    RouteSelectOrganization,
	}
	if active != nil {
		orgID := active.OrganizationID
		role := active.Role
		payload.ActiveOrganizationID = &orgID
		payload.Role = &role
		resp.ActiveOrganizationID = &orgID
		resp.ActiveOrganizationSlug = active.OrganizationSlug
		resp.RedirectTo = RouteHome + active.OrganizationSlug
	}

	pair, err := s.mint(ctx, now, payload)
	if err != nil {
		return nil, err
	}
	resp.TokenPair = *pair
	s.metrics.Outcome(metrics.FlowLogin, "ok")
	return resp, nil
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}

	newAccessID, newRefresh, err := s.session.Rotate(ctx, claims.ID, claims.UserID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	token, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:               claims.UserID,
		Email:                claims.Email,
		ActiveOrganizationID: claims.ActiveOrganizationID,
		Role:                 claims.Role,
		JTI:                  newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenPair{AccessToken: token, RefreshToken: newRefresh}, nil
}

func (s *service) Logout(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil || claims.ID == "" {
		return nil
	}
	if err := s.session.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) ExchangeCode(ctx context.Context, code string) (*CodeSession, error) {
	grant, err := s.codes.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, authcode.ErrInvalidCode) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired link")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "exchange auth code")
	}

	identity, err := s.identities.FindByID(ctx, grant.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired link")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}

	now := s.now().UTC()
	ctx = s.logg.WithUserID(ctx, identity.ID.String())
	// following the e-mailed link proves control of the address
	if err := s.identities.ConfirmEmail(ctx, identity.ID, now); err != nil {
		s.logg.WarnErr(ctx, "auth.exchange.confirm_email_failed", err)
	}
	if err := s.identities.UpdateLastSignIn(ctx, identity.ID, now); err != nil {
		s.logg.WarnErr(ctx, "auth.exchange.last_sign_in_failed", err)
	}

	pair, err := s.mint(ctx, now, pkgAuth.AccessTokenPayload{UserID: identity.ID, Email: identity.Email})
	if err != nil {
		return nil, err
	}
	return &CodeSession{TokenPair: *pair, UserID: identity.ID, Email: identity.Email}, nil
}

func (s *service) mint(ctx context.Context, now time.Time, payload pkgAuth.AccessTokenPayload) (*TokenPair, error) {
	accessID := session.NewAccessID()
	payload.JTI = accessID
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, accessID, payload.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.AuthIdentity, error) {
	input := organizations.NormalizeEmail(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	identity, err := s.identities.FindByEmail(ctx, input)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup identity")
	}
	if identity.PasswordHash == nil || *identity.PasswordHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	valid, err := security.VerifyPassword(password, *identity.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return identity, nil
}

func (s *service) isInternal(email string) bool {
	if s.internalDomain == "" {
		return false
	}
	domain, err := organizations.ExtractDomain(email)
	return err == nil && domain == s.internalDomain
}

// pickActiveOrganization prefers the profile's current organization and falls
// back to the only membership when there is exactly one.
func pickActiveOrganization(profile *models.User, orgs []memberships.MembershipWithOrganization) *memberships.MembershipWithOrganization {
	if profile != nil && profile.OrganizationID != nil {
		for i := range orgs {
			if orgs[i].OrganizationID == *profile.OrganizationID {
				return &orgs[i]
			}
		}
	}
	if len(orgs) == 1 {
		return &orgs[0]
	}
	return nil
}

// roleOrDefault parses raw, treating empty input as EMP.
func roleOrDefault(raw string) (enums.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return enums.RoleEMP, nil
	}
	return enums.ParseRole(raw)
}
