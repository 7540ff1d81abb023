package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/api/middleware"
	"github.com/sapira-ai/pharo-backend/api/responses"
	"github.com/sapira-ai/pharo-backend/api/validators"
	"github.com/sapira-ai/pharo-backend/internal/auth"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

type invitationAcceptor interface {
	Accept(ctx context.Context, in auth.AcceptInput) (*auth.AcceptResult, error)
}

// AuthCallback exchanges the e-mailed code for a session, sets the session
// cookies, accepts the invitation, and redirects into the web app.
func AuthCallback(svc auth.Service, acceptor invitationAcceptor, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	cookies := newSessionCookies(cfg)
	base := strings.TrimRight(cfg.App.BaseURL, "/")
	redirect := func(w http.ResponseWriter, r *http.Request, path string) {
		http.Redirect(w, r, base+path, http.StatusFound)
	}
	loginWithError := func(w http.ResponseWriter, r *http.Request, code string) {
		redirect(w, r, auth.RouteLogin+"?error="+url.QueryEscape(code))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		code := strings.TrimSpace(query.Get("code"))
		if code == "" || svc == nil || acceptor == nil {
			loginWithError(w, r, pkgerrors.ReasonInvalidLink)
			return
		}

		sess, err := svc.ExchangeCode(ctx, code)
		if err != nil {
			if logg != nil {
				logg.WarnErr(ctx, "auth.callback.exchange_failed", err)
			}
			loginWithError(w, r, pkgerrors.LoginReason(err))
			return
		}
		cookies.setSession(w, sess.AccessToken, sess.RefreshToken)
		if logg != nil {
			ctx = logg.WithUserID(ctx, sess.UserID.String())
		}

		result, err := acceptor.Accept(ctx, auth.AcceptInput{
			UserID:         sess.UserID,
			OrganizationID: query.Get("organization_id"),
		})
		if err != nil {
			reason := pkgerrors.LoginReason(err)
			if logg != nil && reason == pkgerrors.ReasonServer {
				logg.WarnErr(ctx, "auth.callback.accept_failed", err)
			}
			loginWithError(w, r, reason)
			return
		}

		if result.OrganizationSlug != nil {
			cookies.setActiveOrganization(w, *result.OrganizationSlug)
		}
		redirect(w, r, result.RedirectTo)
	}
}

// AuthCompleteInvitation runs the acceptance for the authenticated caller.
func AuthCompleteInvitation(acceptor invitationAcceptor, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	cookies := newSessionCookies(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if acceptor == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invitation service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body auth.AcceptInput
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		body.UserID = userID

		result, err := acceptor.Accept(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.OrganizationSlug != nil {
			cookies.setActiveOrganization(w, *result.OrganizationSlug)
		}
		responses.WriteSuccess(w, result)
	}
}
