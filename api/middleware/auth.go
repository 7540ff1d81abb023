package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sapira-ai/pharo-backend/api/responses"
	pkgAuth "github.com/sapira-ai/pharo-backend/pkg/auth"
	"github.com/sapira-ai/pharo-backend/pkg/auth/session"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

// AccessToken extracts the access token from the Authorization header, falling
// back to the session cookie set by login and the auth callback.
func AccessToken(r *http.Request, cookies config.CookieConfig) string {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			return strings.TrimSpace(raw[7:])
		}
		return raw
	}
	if c, err := r.Cookie(cookies.AccessCookie()); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// Auth validates the access token and seeds the request context with its claims.
func Auth(cfg config.JWTConfig, cookies config.CookieConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessToken(r, cookies)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID.String())
			ctx = context.WithValue(ctx, ctxEmail, claims.Email)
			ctx = context.WithValue(ctx, ctxAccessJTI, claims.ID)
			fields := map[string]any{"user_id": claims.UserID.String()}
			if claims.Scoped() {
				ctx = context.WithValue(ctx, ctxRole, string(*claims.Role))
				ctx = context.WithValue(ctx, ctxActiveOrg, claims.ActiveOrganizationID.String())
				fields["actor_role"] = string(*claims.Role)
				fields["active_organization_id"] = claims.ActiveOrganizationID.String()
			}
			if logg != nil {
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
