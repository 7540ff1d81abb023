package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/pkg/db/dbtest"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

type registerTestSetup struct {
	service RegisterService
	conn    *gorm.DB
	acme    testOrg
	closed  testOrg
	other   testOrg
}

func newRegisterTestSetup(t *testing.T) *registerTestSetup {
	t.Helper()
	client, conn := dbtest.Client(t)
	setup := &registerTestSetup{
		conn:   conn,
		acme:   seedOrg(t, conn, "acme", true, "acme.com"),
		closed: seedOrg(t, conn, "closed", false, "closed.com"),
		other:  seedOrg(t, conn, "other", true, "other.com"),
	}
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:       client,
		Organizations:  organizations.NewRepository(conn),
		PasswordConfig: fastPasswordConfig,
		Now:            func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	setup.service = svc
	return setup
}

func validRegisterRequest() RegisterRequest {
	return RegisterRequest{
		Email:     "Ana@Acme.com",
		Password:  "secret1",
		FirstName: "Ana",
		LastName:  "Lopez",
		OrgSlug:   "acme",
		Role:      "EMP",
	}
}

func TestRegisterCreatesIdentityProfileAndMembership(t *testing.T) {
	setup := newRegisterTestSetup(t)

	resp, err := setup.service.Register(context.Background(), validRegisterRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.User == nil || resp.User.Email != "ana@acme.com" {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	if resp.Organization.Slug != "acme" || resp.Membership == nil || resp.Membership.Role != enums.RoleEMP {
		t.Fatalf("unexpected response %+v", resp)
	}

	var identity models.AuthIdentity
	if err := setup.conn.Where("email = ?", "ana@acme.com").First(&identity).Error; err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if identity.ID != resp.User.ID {
		t.Fatal("profile id must equal identity id")
	}
	if identity.EmailConfirmedAt == nil {
		t.Fatal("expected e-mail to be auto-confirmed")
	}
	if identity.PasswordHash == nil {
		t.Fatal("expected password hash")
	}
	ok, err := security.VerifyPassword("secret1", *identity.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected stored hash to verify, ok=%v err=%v", ok, err)
	}
	if identity.MetadataString("organization_id") != setup.acme.org.ID.String() {
		t.Fatalf("unexpected metadata %v", identity.Metadata)
	}
}

func TestRegisterValidationOrder(t *testing.T) {
	setup := newRegisterTestSetup(t)
	foreignBU := setup.other.initiative.ID.String()
	acmeBU := setup.acme.initiative.ID.String()

	cases := []struct {
		name   string
		mutate func(r *RegisterRequest)
		code   pkgerrors.Code
	}{
		{"privileged role wins over everything", func(r *RegisterRequest) {
			r.Role = "sap"
			r.Email = "broken"
			r.Password = ""
			r.OrgSlug = ""
		}, pkgerrors.CodeForbidden},
		{"malformed email", func(r *RegisterRequest) { r.Email = "ana@@acme.com"; r.Password = "x" }, pkgerrors.CodeValidation},
		{"short password", func(r *RegisterRequest) { r.Password = "12345"; r.OrgSlug = "" }, pkgerrors.CodeValidation},
		{"missing slug", func(r *RegisterRequest) { r.OrgSlug = "  "; r.Role = "OWNER" }, pkgerrors.CodeValidation},
		{"unknown organization", func(r *RegisterRequest) { r.OrgSlug = "nope"; r.Role = "OWNER" }, pkgerrors.CodeNotFound},
		{"self registration disabled", func(r *RegisterRequest) {
			r.OrgSlug = "closed"
			r.Email = "ana@closed.com"
			r.Role = "OWNER"
		}, pkgerrors.CodeForbidden},
		{"role outside allow-list", func(r *RegisterRequest) { r.Role = "OWNER"; r.Email = "ana@elsewhere.com" }, pkgerrors.CodeValidation},
		{"BU without business unit", func(r *RegisterRequest) { r.Role = "BU"; r.Email = "ana@elsewhere.com" }, pkgerrors.CodeValidation},
		{"BU with foreign business unit", func(r *RegisterRequest) { r.Role = "BU"; r.BusinessUnitID = &foreignBU }, pkgerrors.CodeValidation},
		{"BU with malformed business unit", func(r *RegisterRequest) { r.Role = "BU"; r.BusinessUnitID = strPtr("not-a-uuid") }, pkgerrors.CodeValidation},
		{"domain outside organization", func(r *RegisterRequest) {
			r.Role = "BU"
			r.BusinessUnitID = &acmeBU
			r.Email = "ana@elsewhere.com"
		}, pkgerrors.CodeForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRegisterRequest()
			tc.mutate(&req)
			_, err := setup.service.Register(context.Background(), req)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	var count int64
	setup.conn.Model(&models.AuthIdentity{}).Count(&count)
	if count != 0 {
		t.Fatalf("validation failures must not create identities, found %d", count)
	}
}

func TestRegisterBusinessUnitLead(t *testing.T) {
	setup := newRegisterTestSetup(t)
	req := validRegisterRequest()
	req.Role = "BU"
	bu := setup.acme.initiative.ID.String()
	req.BusinessUnitID = &bu

	resp, err := setup.service.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Membership.InitiativeID == nil || *resp.Membership.InitiativeID != setup.acme.initiative.ID {
		t.Fatalf("expected initiative on membership, got %+v", resp.Membership)
	}
}

func TestRegisterTwiceConflictsWithoutSecondIdentity(t *testing.T) {
	setup := newRegisterTestSetup(t)

	if _, err := setup.service.Register(context.Background(), validRegisterRequest()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := setup.service.Register(context.Background(), validRegisterRequest())
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var count int64
	setup.conn.Model(&models.AuthIdentity{}).Where("email = ?", "ana@acme.com").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one identity, found %d", count)
	}
}

func TestRegisterRollsBackOnLateFailure(t *testing.T) {
	client, conn := dbtest.Client(t)
	seedOrg(t, conn, "acme", true, "acme.com")

	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:       client,
		Organizations:  organizations.NewRepository(conn),
		PasswordConfig: fastPasswordConfig,
		MembershipRepoFactory: func(*gorm.DB) registerMembershipRepository {
			return failingMembershipRepo{}
		},
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}

	_, err = svc.Register(context.Background(), validRegisterRequest())
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	var identities, profiles int64
	conn.Model(&models.AuthIdentity{}).Count(&identities)
	conn.Model(&models.User{}).Count(&profiles)
	if identities != 0 || profiles != 0 {
		t.Fatalf("expected rollback, found %d identities and %d profiles", identities, profiles)
	}
}

type failingMembershipRepo struct{}

func (failingMembershipRepo) Upsert(context.Context, memberships.UpsertParams) (*models.UserOrganization, error) {
	return nil, errors.New("membership write failed")
}
