package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/internal/identities"
	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/users"
	pkgAuth "github.com/sapira-ai/pharo-backend/pkg/auth"
	"github.com/sapira-ai/pharo-backend/pkg/auth/authcode"
	"github.com/sapira-ai/pharo-backend/pkg/auth/session"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/db/dbtest"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "pharo",
	ExpirationMinutes:      30,
	RefreshTokenTTLMinutes: 120,
}

type memorySessions struct {
	tokens map[string]string
	owners map[string]uuid.UUID
}

func newMemorySessions() *memorySessions {
	return &memorySessions{tokens: map[string]string{}, owners: map[string]uuid.UUID{}}
}

func (m *memorySessions) Generate(_ context.Context, accessID string, userID uuid.UUID) (string, error) {
	token := "refresh-" + accessID
	m.tokens[accessID] = token
	m.owners[accessID] = userID
	return token, nil
}

func (m *memorySessions) Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, provided string) (string, string, error) {
	if m.tokens[oldAccessID] == "" || m.tokens[oldAccessID] != provided || m.owners[oldAccessID] != userID {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(m.tokens, oldAccessID)
	next := session.NewAccessID()
	token, _ := m.Generate(ctx, next, userID)
	return next, token, nil
}

func (m *memorySessions) Revoke(_ context.Context, accessID string) error {
	delete(m.tokens, accessID)
	return nil
}

type stubExchanger struct {
	grants map[string]authcode.Grant
}

func (s *stubExchanger) Exchange(_ context.Context, code string) (authcode.Grant, error) {
	grant, ok := s.grants[code]
	if !ok {
		return authcode.Grant{}, authcode.ErrInvalidCode
	}
	delete(s.grants, code)
	return grant, nil
}

type sessionTestSetup struct {
	service  Service
	conn     *gorm.DB
	sessions *memorySessions
	codes    *stubExchanger
}

func newSessionTestSetup(t *testing.T) *sessionTestSetup {
	t.Helper()
	conn := dbtest.Open(t)
	setup := &sessionTestSetup{
		conn:     conn,
		sessions: newMemorySessions(),
		codes:    &stubExchanger{grants: map[string]authcode.Grant{}},
	}
	svc, err := NewService(ServiceParams{
		IdentityRepo:    identities.NewRepository(conn),
		UserRepo:        users.NewRepository(conn),
		MembershipsRepo: memberships.NewRepository(conn),
		SessionManager:  setup.sessions,
		AuthCodes:       setup.codes,
		JWTConfig:       testJWT,
		InternalDomain:  "sapira.ai",
		Logger:          testLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	setup.service = svc
	return setup
}

func (s *sessionTestSetup) seedPassword(t *testing.T, identity *models.AuthIdentity, password string) {
	t.Helper()
	hash, err := security.HashPassword(password, fastPasswordConfig)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := s.conn.Model(identity).Update("password_hash", hash).Error; err != nil {
		t.Fatalf("set password: %v", err)
	}
}

func TestLoginSingleOrganizationBecomesActive(t *testing.T) {
	setup := newSessionTestSetup(t)
	acme := seedOrg(t, setup.conn, "acme", true, "acme.com")
	identity := seedMember(t, setup.conn, "ana@acme.com", acme.org.ID, "CEO")
	setup.seedPassword(t, identity, "secret1")

	resp, err := setup.service.Login(context.Background(), LoginRequest{Email: "ANA@acme.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.RedirectTo != "/acme" || resp.ActiveOrganizationSlug != "acme" {
		t.Fatalf("unexpected routing %+v", resp)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.ActiveOrganizationID == nil || *claims.ActiveOrganizationID != acme.org.ID {
		t.Fatalf("expected active organization claim, got %+v", claims.ActiveOrganizationID)
	}
	if claims.Role == nil || *claims.Role != enums.RoleCEO {
		t.Fatalf("expected CEO claim, got %+v", claims.Role)
	}
	if resp.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	setup := newSessionTestSetup(t)
	acme := seedOrg(t, setup.conn, "acme", true, "acme.com")
	identity := seedMember(t, setup.conn, "ana@acme.com", acme.org.ID, "EMP")
	setup.seedPassword(t, identity, "secret1")
	seedIdentity(t, setup.conn, "invited@acme.com", nil)

	for _, req := range []LoginRequest{
		{Email: "ana@acme.com", Password: "wrong"},
		{Email: "ghost@acme.com", Password: "secret1"},
		{Email: "invited@acme.com", Password: ""},
		{Email: "", Password: "secret1"},
	} {
		_, err := setup.service.Login(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %q, got %v", req.Email, err)
		}
	}
}

func TestLoginInternalWithoutMembershipSelectsOrganization(t *testing.T) {
	setup := newSessionTestSetup(t)
	identity := seedIdentity(t, setup.conn, "staff@sapira.ai", nil)
	setup.seedPassword(t, identity, "secret1")

	resp, err := setup.service.Login(context.Background(), LoginRequest{Email: "staff@sapira.ai", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.RedirectTo != RouteSelectOrganization || resp.ActiveOrganizationID != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	setup := newSessionTestSetup(t)
	acme := seedOrg(t, setup.conn, "acme", true, "acme.com")
	identity := seedMember(t, setup.conn, "ana@acme.com", acme.org.ID, "EMP")
	setup.seedPassword(t, identity, "secret1")

	login, err := setup.service.Login(context.Background(), LoginRequest{Email: "ana@acme.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	pair, err := setup.service.Refresh(context.Background(), login.AccessToken, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.RefreshToken == login.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}
	if _, err := setup.service.Refresh(context.Background(), login.AccessToken, login.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected old refresh token to be rejected, got %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, pair.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if err := setup.service.Logout(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := setup.sessions.tokens[claims.ID]; ok {
		t.Fatal("expected session to be revoked")
	}
	if err := setup.service.Logout(context.Background(), "garbage"); err != nil {
		t.Fatalf("logout without a valid token must succeed, got %v", err)
	}
}

func TestExchangeCodeIsSingleUseAndConfirmsEmail(t *testing.T) {
	setup := newSessionTestSetup(t)
	identity := seedIdentity(t, setup.conn, "new@acme.com", nil)
	setup.codes.grants["abc"] = authcode.Grant{UserID: identity.ID, Email: identity.Email, Purpose: authcode.PurposeInvite}

	sess, err := setup.service.ExchangeCode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if sess.UserID != identity.ID || sess.AccessToken == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	reloaded, err := identities.NewRepository(setup.conn).FindByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("reload identity: %v", err)
	}
	if reloaded.EmailConfirmedAt == nil || reloaded.LastSignInAt == nil {
		t.Fatalf("expected confirmation and sign-in stamps, got %+v", reloaded)
	}

	if _, err := setup.service.ExchangeCode(context.Background(), "abc"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected reused code to be rejected, got %v", err)
	}
}
