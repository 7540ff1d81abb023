package issues

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/db/dbtest"
	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
	"github.com/sapira-ai/pharo-backend/pkg/logger"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo issueRepository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestTriageAcceptMovesToBacklog(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc := newTestService(t, repo)
	issue := newIssue(uuid.New(), "bug", enums.IssueStatusTriage, fixedNow)
	if err := repo.Create(context.Background(), issue); err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	actor := uuid.New()

	dto, err := svc.Triage(context.Background(), issue.OrganizationID, issue.ID, actor, "Accept")
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if dto.Status != enums.IssueStatusBacklog || dto.TriagedBy == nil || *dto.TriagedBy != actor {
		t.Fatalf("unexpected result %+v", dto)
	}

	_, err = svc.Triage(context.Background(), issue.OrganizationID, issue.ID, actor, "decline")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second triage, got %v", err)
	}
}

func TestTriageDeclineAndErrors(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc := newTestService(t, repo)
	orgID := uuid.New()
	issue := newIssue(orgID, "noise", enums.IssueStatusTriage, fixedNow)
	done := newIssue(orgID, "shipped", enums.IssueStatusDone, fixedNow)
	for _, i := range []*models.Issue{issue, done} {
		if err := repo.Create(context.Background(), i); err != nil {
			t.Fatalf("seed issue: %v", err)
		}
	}

	dto, err := svc.Triage(context.Background(), orgID, issue.ID, uuid.New(), "decline")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if dto.Status != enums.IssueStatusDeclined {
		t.Fatalf("expected declined, got %s", dto.Status)
	}

	cases := []struct {
		name     string
		orgID    uuid.UUID
		issueID  uuid.UUID
		decision string
		code     pkgerrors.Code
	}{
		{"bad decision", orgID, done.ID, "maybe", pkgerrors.CodeValidation},
		{"not in triage", orgID, done.ID, "accept", pkgerrors.CodeStateConflict},
		{"other organization", uuid.New(), done.ID, "accept", pkgerrors.CodeNotFound},
		{"unknown issue", orgID, uuid.New(), "accept", pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Triage(context.Background(), tc.orgID, tc.issueID, uuid.New(), tc.decision)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

type racingRepo struct {
	*Repository
}

// Transition simulates another admin winning the race.
func (r racingRepo) Transition(ctx context.Context, orgID, id uuid.UUID, from, to enums.IssueStatus, actor uuid.UUID, at time.Time) (int64, error) {
	if _, err := r.Repository.Transition(ctx, orgID, id, from, enums.IssueStatusDeclined, uuid.New(), at); err != nil {
		return 0, err
	}
	return 0, nil
}

func TestTriageLosingRaceIsStateConflict(t *testing.T) {
	base := NewRepository(dbtest.Open(t))
	svc := newTestService(t, racingRepo{Repository: base})
	issue := newIssue(uuid.New(), "contested", enums.IssueStatusTriage, fixedNow)
	if err := base.Create(context.Background(), issue); err != nil {
		t.Fatalf("seed issue: %v", err)
	}

	_, err := svc.Triage(context.Background(), issue.OrganizationID, issue.ID, uuid.New(), "accept")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListValidatesStatus(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc := newTestService(t, repo)
	orgID := uuid.New()
	if err := repo.Create(context.Background(), newIssue(orgID, "one", enums.IssueStatusTriage, fixedNow)); err != nil {
		t.Fatalf("seed issue: %v", err)
	}

	if _, err := svc.List(context.Background(), orgID, "archived"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	out, err := svc.List(context.Background(), orgID, "TRIAGE")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].Title != "one" {
		t.Fatalf("unexpected list %+v", out)
	}
}

type failingListRepo struct {
	issueRepository
}

func (failingListRepo) List(context.Context, uuid.UUID, *enums.IssueStatus) ([]models.Issue, error) {
	return nil, errors.New("db down")
}

func TestListRepositoryFailureIsInternal(t *testing.T) {
	svc := newTestService(t, failingListRepo{})
	if _, err := svc.List(context.Background(), uuid.New(), ""); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
