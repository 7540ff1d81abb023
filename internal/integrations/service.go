package integrations

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/internal/issues"
	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
)

const maxTitleRunes = 120

// Service turns chat conversations into issues waiting in triage.
type Service interface {
	// Bridge materializes the conversation. created is false when the
	// conversation had already been bridged; the existing issue is returned.
	Bridge(ctx context.Context, source enums.IssueSource, req ConversationRequest) (issue *issues.IssueDTO, created bool, err error)
}

type organizationLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

type issueStore interface {
	Create(ctx context.Context, issue *models.Issue) error
	FindByConversation(ctx context.Context, source enums.IssueSource, conversationID string) (*models.Issue, error)
}

type ServiceParams struct {
	Organizations organizationLookup
	Issues        issueStore
	Logger        *logger.Logger
	Metrics       *metrics.FlowMetrics
}

type service struct {
	orgs    organizationLookup
	issues  issueStore
	logg    *logger.Logger
	metrics *metrics.FlowMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Organizations == nil {
		return nil, fmt.Errorf("organization repository is required")
	}
	if params.Issues == nil {
		return nil, fmt.Errorf("issue repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		orgs:    params.Organizations,
		issues:  params.Issues,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Bridge(ctx context.Context, source enums.IssueSource, req ConversationRequest) (*issues.IssueDTO, bool, error) {
	if !source.IsValid() || source == enums.IssueSourceWeb {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "unsupported integration source")
	}
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "conversation_id is required")
	}
	if len(req.Messages) == 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "messages are required")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"source":          source.String(),
		"conversation_id": conversationID,
	})

	existing, err := s.issues.FindByConversation(ctx, source, conversationID)
	if err == nil {
		s.metrics.Outcome(metrics.FlowBridge, "replay")
		dto := issues.FromModel(*existing)
		return &dto, false, nil
	}
	if !db.IsNotFound(err) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup bridged conversation")
	}

	org, err := s.resolveOrganization(ctx, req)
	if err != nil {
		return nil, false, err
	}

	issue := &models.Issue{
		OrganizationID:         org.ID,
		Title:                  issueTitle(req),
		Description:            Transcript(req.Messages),
		Status:                 enums.IssueStatusTriage,
		Source:                 source,
		ExternalConversationID: &conversationID,
	}
	if first := req.Messages[0]; strings.TrimSpace(first.AuthorEmail) != "" || strings.TrimSpace(first.AuthorName) != "" {
		issue.ReporterEmail = optional(strings.ToLower(strings.TrimSpace(first.AuthorEmail)))
		issue.ReporterName = optional(strings.TrimSpace(first.AuthorName))
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		if db.IsUniqueViolation(err, "") {
			// a concurrent delivery of the same conversation won
			winner, findErr := s.issues.FindByConversation(ctx, source, conversationID)
			if findErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "reload bridged conversation")
			}
			s.metrics.Outcome(metrics.FlowBridge, "replay")
			dto := issues.FromModel(*winner)
			return &dto, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create issue")
	}

	s.metrics.Outcome(metrics.FlowBridge, "created")
	s.logg.Info(s.logg.WithOrganizationID(ctx, org.ID.String()), "integrations.issue_created")
	dto := issues.FromModel(*issue)
	return &dto, true, nil
}

func (s *service) resolveOrganization(ctx context.Context, req ConversationRequest) (*models.Organization, error) {
	var (
		org *models.Organization
		err error
	)
	switch {
	case strings.TrimSpace(req.OrganizationID) != "":
		id, parseErr := uuid.Parse(strings.TrimSpace(req.OrganizationID))
		if parseErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid organization_id")
		}
		org, err = s.orgs.FindByID(ctx, id)
	case strings.TrimSpace(req.OrganizationSlug) != "":
		org, err = s.orgs.FindBySlug(ctx, req.OrganizationSlug)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization_id or organization_slug is required")
	}
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	return org, nil
}

func issueTitle(req ConversationRequest) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return truncateRunes(title, maxTitleRunes)
	}
	for _, msg := range req.Messages {
		if text := strings.Join(strings.Fields(msg.Text), " "); text != "" {
			return truncateRunes(text, maxTitleRunes)
		}
	}
	return "Untitled conversation"
}

// Transcript renders the conversation as one line per message.
func Transcript(messages []ConversationMessage) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		if msg.SentAt != nil {
			b.WriteString("[" + msg.SentAt.UTC().Format(time.RFC3339) + "] ")
		}
		b.WriteString(author(msg))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(msg.Text))
	}
	return b.String()
}

func author(msg ConversationMessage) string {
	name := strings.TrimSpace(msg.AuthorName)
	email := strings.TrimSpace(msg.AuthorEmail)
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	case email != "":
		return email
	}
	return "unknown"
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
