package issues

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, issue *models.Issue) error {
	return r.db.WithContext(ctx).Create(issue).Error
}

// FindByID loads an issue scoped to its organization.
func (r *Repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&issue).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// FindByConversation loads the issue bridged from an external conversation.
func (r *Repository) FindByConversation(ctx context.Context, source enums.IssueSource, conversationID string) (*models.Issue, error) {
	var issue models.Issue
	err := r.db.WithContext(ctx).
		Where("source = ? AND external_conversation_id = ?", source, conversationID).
		First(&issue).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// List returns the organization's issues, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, status *enums.IssueStatus) ([]models.Issue, error) {
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.Issue
	if err := query.Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition moves an issue from one status to another. The update only
// applies while the issue is still in from; the affected row count is returned.
func (r *Repository) Transition(ctx context.Context, orgID, id uuid.UUID, from, to enums.IssueStatus, actor uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Issue{}).
		Where("organization_id = ? AND id = ? AND status = ?", orgID, id, from).
		Updates(map[string]any{
			"status":     to,
			"triaged_by": actor,
			"triaged_at": at,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}
