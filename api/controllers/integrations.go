package controllers

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/sapira-ai/pharo-backend/api/responses"
	"github.com/sapira-ai/pharo-backend/api/validators"
	"github.com/sapira-ai/pharo-backend/internal/integrations"
	"github.com/sapira-ai/pharo-backend/pkg/config"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

const maxConversationBytes = 1 << 20

// TeamsConversation bridges a Teams conversation into an issue in triage.
func TeamsConversation(svc integrations.Service, cfg config.TeamsConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := integrations.VerifyTeamsSecret(cfg.WebhookSecret, r.Header.Get(integrations.TeamsSecretHeader)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bridgeConversation(w, r, svc, enums.IssueSourceTeams, logg)
	}
}

// SlackConversation bridges a Slack conversation after checking the request signature.
func SlackConversation(svc integrations.Service, cfg config.SlackConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxConversationBytes))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
			return
		}
		err = integrations.VerifySlackSignature(
			cfg.SigningSecret,
			r.Header.Get(integrations.SlackTimestampHeader),
			r.Header.Get(integrations.SlackSignatureHeader),
			body,
			time.Now(),
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		bridgeConversation(w, r, svc, enums.IssueSourceSlack, logg)
	}
}

func bridgeConversation(w http.ResponseWriter, r *http.Request, svc integrations.Service, source enums.IssueSource, logg *logger.Logger) {
	var req integrations.ConversationRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	issue, created, err := svc.Bridge(r.Context(), source, req)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	responses.WriteSuccessStatus(w, status, issue)
}
