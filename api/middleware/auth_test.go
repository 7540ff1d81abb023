package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/auth"
	"github.com/sapira-ai/pharo-backend/pkg/auth/session"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

var (
	testJWT     = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
	testCookies = config.CookieConfig{Prefix: "pharo-auth"}
)

type capturedIdentity struct {
	user   string
	email  string
	role   string
	org    string
	access string
}

func captureHandler(into *capturedIdentity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		into.user = UserIDFromContext(r.Context())
		into.email = EmailFromContext(r.Context())
		into.role = RoleFromContext(r.Context())
		into.org = ActiveOrganizationIDFromContext(r.Context())
		into.access = AccessIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, testCookies, stubSessionVerifier{ok: true}, nil)(captureHandler(&capturedIdentity{}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, testCookies, stubSessionVerifier{ok: true}, nil)(captureHandler(&capturedIdentity{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsBearerToken(t *testing.T) {
	orgID := uuid.New()
	role := enums.RoleCEO
	token, accessID := mintTestToken(t, &orgID, &role)

	var captured capturedIdentity
	handler := Auth(testJWT, testCookies, stubSessionVerifier{ok: true}, nil)(captureHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user == "" || captured.email != "ana@acme.com" {
		t.Fatalf("unexpected identity %+v", captured)
	}
	if captured.role != "CEO" || captured.org != orgID.String() || captured.access != accessID {
		t.Fatalf("unexpected claims in context %+v", captured)
	}
}

func TestAuthFallsBackToSessionCookie(t *testing.T) {
	token, _ := mintTestToken(t, nil, nil)

	var captured capturedIdentity
	handler := Auth(testJWT, testCookies, stubSessionVerifier{ok: true}, nil)(captureHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookies.AccessCookie(), Value: token})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.role != "" || captured.org != "" {
		t.Fatalf("expected token without organization, got %+v", captured)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	token, _ := mintTestToken(t, nil, nil)
	cases := []struct {
		name     string
		verifier stubSessionVerifier
		want     int
	}{
		{"revoked", stubSessionVerifier{ok: false}, http.StatusUnauthorized},
		{"store down", stubSessionVerifier{err: errors.New("redis down")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := Auth(testJWT, testCookies, tc.verifier, nil)(captureHandler(&capturedIdentity{}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.Code)
			}
		})
	}
}

func mintTestToken(t *testing.T, orgID *uuid.UUID, role *enums.Role) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:               uuid.New(),
		Email:                "ana@acme.com",
		ActiveOrganizationID: orgID,
		Role:                 role,
		JTI:                  accessID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, accessID
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}
