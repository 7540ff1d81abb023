package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/api/middleware"
	"github.com/sapira-ai/pharo-backend/api/responses"
	"github.com/sapira-ai/pharo-backend/api/validators"
	"github.com/sapira-ai/pharo-backend/internal/issues"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

func ListIssues(svc issues.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := organizationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), orgID, r.URL.Query().Get("status"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"issues": list})
	}
}

// TriageIssue accepts or declines an issue waiting in triage.
func TriageIssue(svc issues.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orgID, err := organizationIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		issueID, err := uuid.Parse(chi.URLParam(r, "issueId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid issue id"))
			return
		}
		actor, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body issues.TriageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		updated, err := svc.Triage(ctx, orgID, issueID, actor, body.Decision)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}
