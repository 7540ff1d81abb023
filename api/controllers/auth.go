package controllers

import (
	"net/http"

	"github.com/sapira-ai/pharo-backend/api/middleware"
	"github.com/sapira-ai/pharo-backend/api/responses"
	"github.com/sapira-ai/pharo-backend/api/validators"
	"github.com/sapira-ai/pharo-backend/internal/auth"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthLogin signs a user in with e-mail and password.
func AuthLogin(svc auth.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	cookies := newSessionCookies(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cookies.setSession(w, result.AccessToken, result.RefreshToken)
		cookies.setActiveOrganization(w, result.ActiveOrganizationSlug)
		responses.WriteSuccess(w, result)
	}
}

// AuthRegister creates an account through organization self-registration.
func AuthRegister(reg auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reg == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "register service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := reg.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthRefresh rotates the refresh token. The token may come from the body or
// the refresh cookie.
func AuthRefresh(svc auth.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	cookies := newSessionCookies(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body refreshRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		accessToken := middleware.AccessToken(r, cfg.Cookies)
		refreshToken := refreshTokenFrom(r, cfg.Cookies, body.RefreshToken)
		if accessToken == "" || refreshToken == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		pair, err := svc.Refresh(r.Context(), accessToken, refreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cookies.setSession(w, pair.AccessToken, pair.RefreshToken)
		responses.WriteSuccess(w, pair)
	}
}

// AuthSignout revokes the current session when one is presented and always
// clears the session and active-organization cookies.
func AuthSignout(svc auth.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	cookies := newSessionCookies(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		if svc != nil {
			if err := svc.Logout(r.Context(), middleware.AccessToken(r, cfg.Cookies)); err != nil && logg != nil {
				logg.WarnErr(r.Context(), "auth.signout.revoke_failed", err)
			}
		}
		cookies.clearAll(w)
		responses.WriteSuccess(w, map[string]bool{"success": true})
	}
}
