package issues

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/db"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
	"github.com/sapira-ai/pharo-backend/pkg/metrics"
)

// Service lists issues and applies triage decisions.
type Service interface {
	List(ctx context.Context, orgID uuid.UUID, status string) ([]IssueDTO, error)
	Triage(ctx context.Context, orgID, issueID, actor uuid.UUID, decision string) (*IssueDTO, error)
}

type issueRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Issue, error)
	List(ctx context.Context, orgID uuid.UUID, status *enums.IssueStatus) ([]models.Issue, error)
	Transition(ctx context.Context, orgID, id uuid.UUID, from, to enums.IssueStatus, actor uuid.UUID, at time.Time) (int64, error)
}

type ServiceParams struct {
	Repo    issueRepository
	Logger  *logger.Logger
	Metrics *metrics.FlowMetrics
	Now     func() time.Time
}

type service struct {
	repo    issueRepository
	logg    *logger.Logger
	metrics *metrics.FlowMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("issue repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, logg: params.Logger, metrics: params.Metrics, now: now}, nil
}

func (s *service) List(ctx context.Context, orgID uuid.UUID, status string) ([]IssueDTO, error) {
	var filter *enums.IssueStatus
	if raw := strings.TrimSpace(status); raw != "" {
		parsed, err := enums.ParseIssueStatus(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter = &parsed
	}

	rows, err := s.repo.List(ctx, orgID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list issues")
	}
	out := make([]IssueDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Triage(ctx context.Context, orgID, issueID, actor uuid.UUID, decision string) (*IssueDTO, error) {
	parsed, err := enums.ParseTriageDecision(strings.ToLower(strings.TrimSpace(decision)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decision must be accept or decline")
	}

	issue, err := s.repo.FindByID(ctx, orgID, issueID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "issue not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load issue")
	}
	if issue.Status != enums.IssueStatusTriage {
		s.metrics.Outcome(metrics.FlowTriage, "state_conflict")
		return nil, stateConflict(issue.Status)
	}

	target := parsed.TargetStatus()
	now := s.now().UTC()
	affected, err := s.repo.Transition(ctx, orgID, issueID, enums.IssueStatusTriage, target, actor, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update issue status")
	}
	if affected == 0 {
		// another admin triaged it first
		current, err := s.repo.FindByID(ctx, orgID, issueID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload issue")
		}
		s.metrics.Outcome(metrics.FlowTriage, "state_conflict")
		return nil, stateConflict(current.Status)
	}

	issue.Status = target
	issue.TriagedBy = &actor
	issue.TriagedAt = &now
	issue.UpdatedAt = now
	s.metrics.Outcome(metrics.FlowTriage, string(parsed))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"issue_id": issueID.String(),
		"status":   target.String(),
	}), "issues.triaged")

	dto := FromModel(*issue)
	return &dto, nil
}

func stateConflict(current enums.IssueStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "issue is not awaiting triage").
		WithDetails(map[string]string{"status": current.String()})
}
