package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/internal/users"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

// ErrMissingOrganization is returned when an acceptance names no organization
// and the user is not internal staff.
var ErrMissingOrganization = pkgerrors.New(pkgerrors.CodeValidation, "missing organization").WithReason("missing_organization")

// Authorization failures of an acceptance. Existing rows are left untouched.
var (
	ErrNoInvitation        = pkgerrors.New(pkgerrors.CodeForbidden, "no pending invitation for this organization")
	ErrInvitationExpired   = pkgerrors.New(pkgerrors.CodeForbidden, "invitation has expired")
	ErrMembershipSuspended = pkgerrors.New(pkgerrors.CodeForbidden, "membership is suspended")
)

// Acceptance steps, used to label swallowed failures.
const (
	StepCreateProfile    = "create_profile"
	StepUpsertMembership = "upsert_membership"
	StepMarkAccepted     = "mark_invitation_accepted"
	StepResolveSlug      = "resolve_organization"
	StepSetCurrentOrg    = "set_current_organization"
)

type acceptIdentityReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.AuthIdentity, error)
	SetPassword(ctx context.Context, id uuid.UUID, hash string) error
}

type acceptUserRepository interface {
	CreateIfAbsent(ctx context.Context, dto users.CreateUserDTO) (bool, error)
	SetCurrentOrganization(ctx context.Context, userID, orgID uuid.UUID) error
}

type acceptMembershipRepository interface {
	Upsert(ctx context.Context, params memberships.UpsertParams) (*models.UserOrganization, error)
	GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.UserOrganization, error)
}

type acceptInvitationRepository interface {
	FindNewestPending(ctx context.Context, email string, orgID uuid.UUID) (*models.Invitation, error)
	MarkAccepted(ctx context.Context, email string, orgID uuid.UUID, at time.Time) (int64, error)
}

type acceptOrgReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// AcceptorParams bundles the dependencies of the Acceptor.
type AcceptorParams struct {
	Identities     acceptIdentityReader
	Users          acceptUserRepository
	Memberships    acceptMembershipRepository
	Invitations    acceptInvitationRepository
	Organizations  acceptOrgReader
	InternalDomain string
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
	Metrics        *metrics.FlowMetrics
	Now            func() time.Time
}

// Acceptor turns an authenticated identity and the invitation granted to it
// into a profile, an active membership, and a landing route. Both the redirect
// callback and the JSON completion endpoint go through it.
type Acceptor struct {
	identities     acceptIdentityReader
	users          acceptUserRepository
	memberships    acceptMembershipRepository
	invitations    acceptInvitationRepository
	orgs           acceptOrgReader
	internalDomain string
	passwordCfg    config.PasswordConfig
	logg           *logger.Logger
	metrics        *metrics.FlowMetrics
	now            func() time.Time
}

// NewAcceptor validates params and builds an Acceptor.
func NewAcceptor(params AcceptorParams) (*Acceptor, error) {
	switch {
	case params.Identities == nil:
		return nil, fmt.Errorf("identity reader is required")
	case params.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case params.Memberships == nil:
		return nil, fmt.Errorf("memberships repository is required")
	case params.Invitations == nil:
		return nil, fmt.Errorf("invitation repository is required")
	case params.Organizations == nil:
		return nil, fmt.Errorf("organization reader is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Acceptor{
		identities:     params.Identities,
		users:          params.Users,
		memberships:    params.Memberships,
		invitations:    params.Invitations,
		orgs:           params.Organizations,
		internalDomain: strings.ToLower(strings.TrimSpace(params.InternalDomain)),
		passwordCfg:    params.PasswordConfig,
		logg:           params.Logger,
		metrics:        params.Metrics,
		now:            now,
	}, nil
}

// grant is the membership an acceptance is allowed to materialize. It comes
// from a pending invitation, an existing membership, or the invitation
// metadata stored on the identity; never from the request.
type grant struct {
	role         enums.Role
	initiativeID *uuid.UUID
	sapiraRole   *enums.SapiraRoleType
	// existing memberships are routed to but not rewritten.
	existing bool
}

// Accept runs the acceptance for in.UserID. Input, identity and authorization
// failures are returned; failures after the grant is known are logged and
// swallowed.
func (a *Acceptor) Accept(ctx context.Context, in AcceptInput) (*AcceptResult, error) {
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if in.Password != "" && len(in.Password) < a.minPasswordLength() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "password must be at least %d characters", a.minPasswordLength())
	}
	identity, err := a.identities.FindByID(ctx, in.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}
	ctx = a.logg.WithUserID(ctx, identity.ID.String())

	orgID, err := targetOrganization(in, identity)
	if err != nil {
		a.metrics.Outcome(metrics.FlowAccept, "invalid")
		return nil, err
	}
	if orgID == nil {
		if a.isInternal(identity.Email) {
			if err := a.setPassword(ctx, identity, in.Password); err != nil {
				return nil, err
			}
			a.metrics.Outcome(metrics.FlowAccept, "select_organization")
			return &AcceptResult{RedirectTo: RouteSelectOrganization}, nil
		}
		a.metrics.Outcome(metrics.FlowAccept, "missing_organization")
		return nil, ErrMissingOrganization
	}
	ctx = a.logg.WithOrganizationID(ctx, orgID.String())

	g, err := a.authorize(ctx, identity, *orgID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
			a.logg.Warn(ctx, "auth.accept.denied")
			a.metrics.Outcome(metrics.FlowAccept, "forbidden")
		}
		return nil, err
	}
	if err := a.setPassword(ctx, identity, in.Password); err != nil {
		return nil, err
	}
	role := g.role

	if _, err := a.users.CreateIfAbsent(ctx, users.CreateUserDTO{
		ID:             identity.ID,
		Email:          identity.Email,
		FirstName:      identity.MetadataString("first_name"),
		LastName:       identity.MetadataString("last_name"),
		OrganizationID: orgID,
		Role:           &role,
	}); err != nil {
		a.swallow(ctx, StepCreateProfile, err)
	}

	if !g.existing {
		if _, err := a.memberships.Upsert(ctx, memberships.UpsertParams{
			UserID:         identity.ID,
			OrganizationID: *orgID,
			Role:           role,
			SapiraRoleType: g.sapiraRole,
			InitiativeID:   g.initiativeID,
		}); err != nil {
			a.swallow(ctx, StepUpsertMembership, err)
		}
	}

	if _, err := a.invitations.MarkAccepted(ctx, identity.Email, *orgID, a.now().UTC()); err != nil {
		a.swallow(ctx, StepMarkAccepted, err)
	}

	result := &AcceptResult{RedirectTo: RouteHome, OrganizationID: orgID, Role: &role}
	org, err := a.orgs.FindByID(ctx, *orgID)
	if err != nil {
		a.swallow(ctx, StepResolveSlug, err)
	} else {
		slug := org.Slug
		result.OrganizationSlug = &slug
		result.RedirectTo = RouteHome + slug
	}

	if err := a.users.SetCurrentOrganization(ctx, identity.ID, *orgID); err != nil {
		a.swallow(ctx, StepSetCurrentOrg, err)
	}

	outcome := "joined"
	if g.existing {
		outcome = "returning"
	}
	a.metrics.Outcome(metrics.FlowAccept, outcome)
	return result, nil
}

// authorize finds what the identity may materialize in orgID. A pending,
// unexpired invitation wins; then an existing membership, which must be
// active; then invitation metadata naming the organization.
func (a *Acceptor) authorize(ctx context.Context, identity *models.AuthIdentity, orgID uuid.UUID) (*grant, error) {
	expired := false
	invitation, err := a.invitations.FindNewestPending(ctx, identity.Email, orgID)
	switch {
	case err == nil && a.now().Before(invitation.ExpiresAt):
		return grantFromInvitation(invitation, identity, orgID), nil
	case err == nil:
		expired = true
	case db.IsNotFound(err):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup invitation")
	}

	membership, err := a.memberships.GetMembership(ctx, identity.ID, orgID)
	switch {
	case err == nil:
		if !membership.Active {
			return nil, ErrMembershipSuspended
		}
		return &grant{
			role:         membership.Role,
			initiativeID: membership.InitiativeID,
			sapiraRole:   membership.SapiraRoleType,
			existing:     true,
		}, nil
	case db.IsNotFound(err):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup membership")
	}

	if expired {
		return nil, ErrInvitationExpired
	}
	if identity.MetadataString("organization_id") != orgID.String() {
		return nil, ErrNoInvitation
	}
	return grantFromMetadata(identity)
}

func grantFromInvitation(invitation *models.Invitation, identity *models.AuthIdentity, orgID uuid.UUID) *grant {
	g := &grant{role: invitation.Role, initiativeID: invitation.BusinessUnitID}
	if g.role == "" {
		g.role = enums.RoleEMP
	}
	if g.role == enums.RoleSAP {
		g.sapiraRole = invitation.SapiraRoleType
	}
	// Older invitations carried the initiative only in the identity metadata.
	if g.initiativeID == nil && identity.MetadataString("organization_id") == orgID.String() {
		if id, err := metadataInitiative(identity); err == nil {
			g.initiativeID = id
		}
	}
	return g
}

func grantFromMetadata(identity *models.AuthIdentity) (*grant, error) {
	role, err := roleOrDefault(identity.MetadataString("role"))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role is invalid")
	}
	initiativeID, err := metadataInitiative(identity)
	if err != nil {
		return nil, err
	}
	g := &grant{role: role, initiativeID: initiativeID}
	if raw := identity.MetadataString("sapira_role_type"); raw != "" && role == enums.RoleSAP {
		if roleType, err := enums.ParseSapiraRoleType(raw); err == nil {
			g.sapiraRole = &roleType
		}
	}
	return g, nil
}

func metadataInitiative(identity *models.AuthIdentity) (*uuid.UUID, error) {
	raw := firstNonEmpty(identity.MetadataString("initiative_id"), identity.MetadataString("business_unit_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initiative_id is invalid")
	}
	return &id, nil
}

func (a *Acceptor) setPassword(ctx context.Context, identity *models.AuthIdentity, password string) error {
	if password == "" {
		return nil
	}
	hash, err := security.HashPassword(password, a.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := a.identities.SetPassword(ctx, identity.ID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store password")
	}
	a.logg.Info(ctx, "auth.accept.password_set")
	return nil
}

func (a *Acceptor) minPasswordLength() int {
	if a.passwordCfg.MinLength > minPasswordLength {
		return a.passwordCfg.MinLength
	}
	return minPasswordLength
}

func (a *Acceptor) swallow(ctx context.Context, step string, err error) {
	a.logg.WarnErr(a.logg.WithField(ctx, "step", step), "auth.accept.step_failed", err)
	a.metrics.Swallowed(metrics.FlowAccept, step)
}

func (a *Acceptor) isInternal(email string) bool {
	if a.internalDomain == "" {
		return false
	}
	domain, err := organizations.ExtractDomain(email)
	return err == nil && domain == a.internalDomain
}

// targetOrganization picks the organization to join: the explicit one, else
// the one named in the identity metadata. Nil means neither is set.
func targetOrganization(in AcceptInput, identity *models.AuthIdentity) (*uuid.UUID, error) {
	raw := firstNonEmpty(in.OrganizationID, identity.MetadataString("organization_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization_id is invalid")
	}
	return &id, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
