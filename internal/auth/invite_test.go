package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/internal/identities"
	"github.com/sapira-ai/pharo-backend/internal/invitations"
	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/pkg/auth/authcode"
	"github.com/sapira-ai/pharo-backend/pkg/db/dbtest"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/mailer"
)

type stubCodeIssuer struct {
	grants []authcode.Grant
	ttl    time.Duration
}

func (s *stubCodeIssuer) Issue(_ context.Context, grant authcode.Grant, ttl time.Duration) (string, error) {
	s.grants = append(s.grants, grant)
	s.ttl = ttl
	return "code-123", nil
}

type stubMailer struct {
	sent []mailer.InvitationEmail
	err  error
}

func (s *stubMailer) SendInvitation(_ context.Context, invite mailer.InvitationEmail) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, invite)
	return nil
}

type inviteTestSetup struct {
	service InviteService
	conn    *gorm.DB
	codes   *stubCodeIssuer
	mail    *stubMailer
	acme    testOrg
	admin   *models.AuthIdentity
	member  *models.AuthIdentity
}

func newInviteTestSetup(t *testing.T) *inviteTestSetup {
	t.Helper()
	conn := dbtest.Open(t)
	setup := &inviteTestSetup{
		conn:  conn,
		codes: &stubCodeIssuer{},
		mail:  &stubMailer{},
		acme:  seedOrg(t, conn, "acme", true, "acme.com"),
	}
	setup.admin = seedMember(t, conn, "ceo@acme.com", setup.acme.org.ID, "CEO")
	setup.member = seedMember(t, conn, "emp@acme.com", setup.acme.org.ID, "EMP")

	svc, err := NewInviteService(InviteServiceParams{
		Memberships:   memberships.NewRepository(conn),
		Organizations: organizations.NewRepository(conn),
		Identities:    identities.NewRepository(conn),
		Invitations:   invitations.NewRepository(conn),
		AuthCodes:     setup.codes,
		Mailer:        setup.mail,
		BaseURL:       "https://pharo.example/",
		TTL:           7 * 24 * time.Hour,
		Logger:        testLogger(),
		Now:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new invite service: %v", err)
	}
	setup.service = svc
	return setup
}

func (s *inviteTestSetup) invitationCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := s.conn.Model(&models.Invitation{}).Count(&count).Error; err != nil {
		t.Fatalf("count invitations: %v", err)
	}
	return count
}

func TestInviteRejectsNonAdminBeforeAnyWork(t *testing.T) {
	setup := newInviteTestSetup(t)

	_, err := setup.service.Invite(context.Background(),
		Inviter{UserID: setup.member.ID, Email: setup.member.Email},
		setup.acme.org.ID,
		InviteRequest{Email: "not-even-valid", Role: "??"},
	)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden || typed.Message() != NotOrgAdminMessage {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if setup.invitationCount(t) != 0 || len(setup.codes.grants) != 0 || len(setup.mail.sent) != 0 {
		t.Fatal("non-admin call must not create anything")
	}
}

func TestInviteRequiresAuthentication(t *testing.T) {
	setup := newInviteTestSetup(t)
	_, err := setup.service.Invite(context.Background(), Inviter{}, setup.acme.org.ID, InviteRequest{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestInviteIssuesCodeMailAndRecord(t *testing.T) {
	setup := newInviteTestSetup(t)
	bu := setup.acme.initiative.ID.String()

	resp, err := setup.service.Invite(context.Background(),
		Inviter{UserID: setup.admin.ID, Email: setup.admin.Email},
		setup.acme.org.ID,
		InviteRequest{Email: " New@Acme.com ", Role: "bu", BusinessUnitID: &bu},
	)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if resp.Email != "new@acme.com" || resp.Role != enums.RoleBU || !resp.ExpiresAt.Equal(fixedNow.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected response %+v", resp)
	}

	identity, err := identities.NewRepository(setup.conn).FindByEmail(context.Background(), "new@acme.com")
	if err != nil {
		t.Fatalf("expected identity to be created: %v", err)
	}
	if identity.PasswordHash != nil || identity.InvitedAt == nil {
		t.Fatalf("expected password-less invited identity, got %+v", identity)
	}
	if identity.MetadataString("organization_id") != setup.acme.org.ID.String() ||
		identity.MetadataString("role") != "BU" ||
		identity.MetadataString("business_unit_id") != bu {
		t.Fatalf("unexpected metadata %v", identity.Metadata)
	}

	if len(setup.codes.grants) != 1 || setup.codes.grants[0].UserID != identity.ID {
		t.Fatalf("unexpected grants %+v", setup.codes.grants)
	}
	if len(setup.mail.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(setup.mail.sent))
	}
	link, err := url.Parse(setup.mail.sent[0].AcceptURL)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if !strings.HasPrefix(setup.mail.sent[0].AcceptURL, "https://pharo.example/auth/callback?") {
		t.Fatalf("unexpected link %s", setup.mail.sent[0].AcceptURL)
	}
	q := link.Query()
	if q.Get("code") != "code-123" || q.Get("organization_id") != setup.acme.org.ID.String() {
		t.Fatalf("unexpected link query %v", q)
	}
	if q.Has("role") || q.Has("business_unit_id") {
		t.Fatalf("link must not carry the granted role: %v", q)
	}

	var invitation models.Invitation
	if err := setup.conn.Where("email = ?", "new@acme.com").First(&invitation).Error; err != nil {
		t.Fatalf("expected invitation row: %v", err)
	}
	if invitation.InvitedBy == nil || *invitation.InvitedBy != setup.admin.ID {
		t.Fatalf("unexpected invited_by %+v", invitation.InvitedBy)
	}
}

func TestInviteValidation(t *testing.T) {
	setup := newInviteTestSetup(t)
	foreign := uuid.NewString()
	fde := "FDE"

	cases := []struct {
		name string
		req  InviteRequest
	}{
		{"bad email", InviteRequest{Email: "a@b@c.com", Role: "EMP"}},
		{"bad role", InviteRequest{Email: "x@acme.com", Role: "OWNER"}},
		{"BU without unit", InviteRequest{Email: "x@acme.com", Role: "BU"}},
		{"BU with foreign unit", InviteRequest{Email: "x@acme.com", Role: "BU", BusinessUnitID: &foreign}},
		{"sapira type on non SAP", InviteRequest{Email: "x@acme.com", Role: "CEO", SapiraRoleType: &fde}},
		{"unknown sapira type", InviteRequest{Email: "x@acme.com", Role: "SAP", SapiraRoleType: strPtr("WIZARD")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := setup.service.Invite(context.Background(), Inviter{UserID: setup.admin.ID}, setup.acme.org.ID, tc.req)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestInviteExistingMemberConflicts(t *testing.T) {
	setup := newInviteTestSetup(t)
	_, err := setup.service.Invite(context.Background(), Inviter{UserID: setup.admin.ID}, setup.acme.org.ID,
		InviteRequest{Email: "emp@acme.com", Role: "EMP"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestInviteMailerFailureIsDependencyError(t *testing.T) {
	setup := newInviteTestSetup(t)
	setup.mail.err = errors.New("sendgrid down")

	_, err := setup.service.Invite(context.Background(), Inviter{UserID: setup.admin.ID}, setup.acme.org.ID,
		InviteRequest{Email: "new@acme.com", Role: "EMP"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if setup.invitationCount(t) != 0 {
		t.Fatal("failed delivery must not record an invitation")
	}
}

func TestInviteSAPKeepsRoleType(t *testing.T) {
	setup := newInviteTestSetup(t)
	lead := "advisory_lead"

	if _, err := setup.service.Invite(context.Background(), Inviter{UserID: setup.admin.ID}, setup.acme.org.ID,
		InviteRequest{Email: "staff@sapira.ai", Role: "SAP", SapiraRoleType: &lead}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	var invitation models.Invitation
	if err := setup.conn.Where("email = ?", "staff@sapira.ai").First(&invitation).Error; err != nil {
		t.Fatalf("load invitation: %v", err)
	}
	if invitation.SapiraRoleType == nil || *invitation.SapiraRoleType != enums.SapiraRoleAdvisoryLead {
		t.Fatalf("unexpected role type %+v", invitation.SapiraRoleType)
	}
}
