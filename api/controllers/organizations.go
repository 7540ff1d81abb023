package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/api/middleware"
	"github.com/sapira-ai/pharo-backend/api/responses"
	"github.com/sapira-ai/pharo-backend/api/validators"
	"github.com/sapira-ai/pharo-backend/internal/auth"
	"github.com/sapira-ai/pharo-backend/internal/invitations"
	"github.com/sapira-ai/pharo-backend/internal/memberships"
	"github.com/sapira-ai/pharo-backend/internal/organizations"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

type resolveRequest struct {
	Email string `json:"email"`
}

type organizationUserLister interface {
	ListOrganizationUsers(ctx context.Context, orgID uuid.UUID) ([]memberships.OrganizationUserDTO, error)
}

type pendingInvitationLister interface {
	ListPending(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.Invitation, error)
}

type organizationUsersResponse struct {
	Users              []memberships.OrganizationUserDTO `json:"users"`
	PendingInvitations []invitations.InvitationDTO      `json:"pending_invitations"`
}

// ResolveOrganization maps an e-mail to the organization owning its domain.
// Shape validation happens in the service so malformed input never reaches a lookup.
func ResolveOrganization(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "organization service unavailable"))
			return
		}
		var body resolveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Resolve(r.Context(), body.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PublicOrganization(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func PublicOrganizationDomains(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domains, err := svc.Domains(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, domains)
	}
}

func PublicOrganizationInitiatives(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Initiatives(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"initiatives": list})
	}
}

// CreateInitiative adds an initiative to the organization in the route.
func CreateInitiative(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := organizationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body organizations.CreateInitiativeInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateInitiative(r.Context(), orgID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// OrganizationUsers lists members together with the unexpired pending invitations.
func OrganizationUsers(members organizationUserLister, pending pendingInvitationLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := organizationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		users, err := members.ListOrganizationUsers(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organization users"))
			return
		}
		rows, err := pending.ListPending(r.Context(), orgID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending invitations"))
			return
		}

		out := organizationUsersResponse{
			Users:              users,
			PendingInvitations: make([]invitations.InvitationDTO, 0, len(rows)),
		}
		if out.Users == nil {
			out.Users = []memberships.OrganizationUserDTO{}
		}
		for _, row := range rows {
			out.PendingInvitations = append(out.PendingInvitations, invitations.FromModel(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// InviteUser issues an invitation on behalf of the authenticated admin.
// The admin check lives in the service so it runs before any input-dependent work.
func InviteUser(svc auth.InviteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		inviterID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		orgID, err := organizationIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body auth.InviteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		inviter := auth.Inviter{UserID: inviterID, Email: middleware.EmailFromContext(ctx)}
		result, err := svc.Invite(ctx, inviter, orgID, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func organizationIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, middleware.OrganizationParam))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid organization id")
	}
	return id, nil
}
