package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/internal/identities"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/pkg/auth/authcode"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/mailer"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
)

// NotOrgAdminMessage is returned to callers without an admin membership.
const NotOrgAdminMessage = "Forbidden: Not an organization admin"

const defaultInvitationTTL = 7 * 24 * time.Hour

// InviteService issues organization invitations.
type InviteService interface {
	Invite(ctx context.Context, inviter Inviter, orgID uuid.UUID, req InviteRequest) (*InviteResponse, error)
}

type inviteMembershipRepository interface {
	IsOrgAdmin(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	FindActive(ctx context.Context, userID, orgID uuid.UUID) (*models.UserOrganization, error)
}

type inviteOrgRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindInitiative(ctx context.Context, orgID, initiativeID uuid.UUID) (*models.Initiative, error)
}

type inviteIdentityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error)
	Create(ctx context.Context, dto identities.CreateIdentityDTO) (*models.AuthIdentity, error)
	MergeMetadata(ctx context.Context, id uuid.UUID, values map[string]any) (*models.AuthIdentity, error)
	MarkInvited(ctx context.Context, id uuid.UUID, at time.Time) error
}

type inviteInvitationRepository interface {
	Create(ctx context.Context, invitation *models.Invitation) error
}

type codeIssuer interface {
	Issue(ctx context.Context, grant authcode.Grant, ttl time.Duration) (string, error)
}

type invitationMailer interface {
	SendInvitation(ctx context.Context, invite mailer.InvitationEmail) error
}

// InviteServiceParams bundles the dependencies of the invitation issuer.
type InviteServiceParams struct {
	Memberships   inviteMembershipRepository
	Organizations inviteOrgRepository
	Identities    inviteIdentityRepository
	Invitations   inviteInvitationRepository
	AuthCodes     codeIssuer
	Mailer        invitationMailer
	BaseURL       string
	TTL           time.Duration
	Logger        *logger.Logger
	Metrics       *metrics.FlowMetrics
	Now           func() time.Time
}

type inviteService struct {
	memberships inviteMembershipRepository
	orgs        inviteOrgRepository
	identities  inviteIdentityRepository
	invitations inviteInvitationRepository
	codes       codeIssuer
	mailer      invitationMailer
	baseURL     string
	ttl         time.Duration
	logg        *logger.Logger
	metrics     *metrics.FlowMetrics
	now         func() time.Time
}

// NewInviteService validates params and builds the invitation issuer.
func NewInviteService(params InviteServiceParams) (InviteService, error) {
	switch {
	case params.Memberships == nil:
		return nil, fmt.Errorf("memberships repository is required")
	case params.Organizations == nil:
		return nil, fmt.Errorf("organization repository is required")
	case params.Identities == nil:
		return nil, fmt.Errorf("identity repository is required")
	case params.Invitations == nil:
		return nil, fmt.Errorf("invitation repository is required")
	case params.AuthCodes == nil:
		return nil, fmt.Errorf("auth code issuer is required")
	case params.Mailer == nil:
		return nil, fmt.Errorf("mailer is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if _, err := url.Parse(params.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultInvitationTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &inviteService{
		memberships: params.Memberships,
		orgs:        params.Organizations,
		identities:  params.Identities,
		invitations: params.Invitations,
		codes:       params.AuthCodes,
		mailer:      params.Mailer,
		baseURL:     strings.TrimRight(params.BaseURL, "/"),
		ttl:         ttl,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

type validatedInvite struct {
	email          string
	role           enums.Role
	businessUnitID *uuid.UUID
	sapiraRoleType *enums.SapiraRoleType
}

func (s *inviteService) Invite(ctx context.Context, inviter Inviter, orgID uuid.UUID, req InviteRequest) (*InviteResponse, error) {
	if inviter.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	admin, err := s.memberships.IsOrgAdmin(ctx, inviter.UserID, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organization admin")
	}
	if !admin {
		s.metrics.Outcome(metrics.FlowInvite, "forbidden")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, NotOrgAdminMessage)
	}

	input, err := s.validate(ctx, orgID, req)
	if err != nil {
		s.metrics.Outcome(metrics.FlowInvite, "invalid")
		return nil, err
	}

	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"organization_id": orgID.String(),
		"invitee":         input.email,
	})
	now := s.now().UTC()

	identity, err := s.ensureIdentity(ctx, orgID, input.email, now)
	if err != nil {
		return nil, err
	}

	if _, err := s.identities.MergeMetadata(ctx, identity.ID, invitationMetadata(orgID, input)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store invitation metadata")
	}

	code, err := s.codes.Issue(ctx, authcode.Grant{
		UserID:  identity.ID,
		Email:   identity.Email,
		Purpose: authcode.PurposeInvite,
	}, s.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue invitation code")
	}

	expiresAt := now.Add(s.ttl)
	if err := s.mailer.SendInvitation(ctx, mailer.InvitationEmail{
		To:               input.email,
		OrganizationName: org.Name,
		Role:             string(input.role),
		InviterEmail:     inviter.Email,
		AcceptURL:        s.callbackURL(code, orgID),
		ExpiresAt:        expiresAt,
	}); err != nil {
		s.metrics.Outcome(metrics.FlowInvite, "mail_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to send invitation email")
	}

	inviterID := inviter.UserID
	if err := s.invitations.Create(ctx, &models.Invitation{
		Email:          input.email,
		OrganizationID: orgID,
		Role:           input.role,
		SapiraRoleType: input.sapiraRoleType,
		BusinessUnitID: input.businessUnitID,
		InvitedBy:      &inviterID,
		ExpiresAt:      expiresAt,
	}); err != nil {
		s.logg.WarnErr(ctx, "auth.invite.record_invitation_failed", err)
		s.metrics.Swallowed(metrics.FlowInvite, "record_invitation")
	}

	s.metrics.Outcome(metrics.FlowInvite, "sent")
	return &InviteResponse{
		Email:          input.email,
		OrganizationID: orgID,
		Role:           input.role,
		BusinessUnitID: input.businessUnitID,
		ExpiresAt:      expiresAt,
	}, nil
}

func (s *inviteService) validate(ctx context.Context, orgID uuid.UUID, req InviteRequest) (*validatedInvite, error) {
	email := organizations.NormalizeEmail(req.Email)
	if !organizations.ValidEmail(email) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
	}
	role, err := enums.ParseRole(req.Role)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be one of SAP, CEO, BU, EMP")
	}
	out := &validatedInvite{email: email, role: role}

	if role.RequiresInitiative() {
		if req.BusinessUnitID == nil || strings.TrimSpace(*req.BusinessUnitID) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "business_unit_id is required for role BU")
		}
		id, err := uuid.Parse(strings.TrimSpace(*req.BusinessUnitID))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "business_unit_id is invalid")
		}
		if _, err := s.orgs.FindInitiative(ctx, orgID, id); err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "business_unit_id does not belong to this organization")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load initiative")
		}
		out.businessUnitID = &id
	}

	if req.SapiraRoleType != nil && strings.TrimSpace(*req.SapiraRoleType) != "" {
		if role != enums.RoleSAP {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sapira_role_type is only allowed for role SAP")
		}
		roleType, err := enums.ParseSapiraRoleType(*req.SapiraRoleType)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sapira_role_type")
		}
		out.sapiraRoleType = &roleType
	}
	return out, nil
}

// ensureIdentity returns the invitee's identity, creating a password-less one
// when needed. Invitees who are already active members are rejected.
func (s *inviteService) ensureIdentity(ctx context.Context, orgID uuid.UUID, email string, now time.Time) (*models.AuthIdentity, error) {
	identity, err := s.identities.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if _, err := s.memberships.FindActive(ctx, identity.ID, orgID); err == nil {
			s.metrics.Outcome(metrics.FlowInvite, "already_member")
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user is already a member of this organization")
		} else if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check membership")
		}
		if err := s.identities.MarkInvited(ctx, identity.ID, now); err != nil {
			s.logg.WarnErr(ctx, "auth.invite.mark_invited_failed", err)
		}
		return identity, nil
	case db.IsNotFound(err):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup identity")
	}

	identity, err = s.identities.Create(ctx, identities.CreateIdentityDTO{Email: email, InvitedAt: &now})
	if err == nil {
		return identity, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create identity")
	}
	// a concurrent invitation created it first
	identity, err = s.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup identity")
	}
	return identity, nil
}

// callbackURL only names the organization; the role is read back from the
// invitation on acceptance.
func (s *inviteService) callbackURL(code string, orgID uuid.UUID) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("organization_id", orgID.String())
	return s.baseURL + "/auth/callback?" + q.Encode()
}

// invitationMetadata is merged into the identity so acceptance can recover the
// invitation parameters. Nil values clear stale keys from earlier invitations.
func invitationMetadata(orgID uuid.UUID, input *validatedInvite) map[string]any {
	md := map[string]any{
		"organization_id":  orgID.String(),
		"role":             string(input.role),
		"business_unit_id": nil,
		"initiative_id":    nil,
		"sapira_role_type": nil,
	}
	if input.businessUnitID != nil {
		md["business_unit_id"] = input.businessUnitID.String()
	}
	if input.sapiraRoleType != nil {
		md["sapira_role_type"] = string(*input.sapiraRoleType)
	}
	return md
}
