package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// Issue is a tracked work item. Bridged issues are unique per
// (source, external_conversation_id).
type Issue struct {
	ID                     uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID         uuid.UUID         `gorm:"column:organization_id;type:uuid;not null;index"`
	Title                  string            `gorm:"column:title;not null"`
	Description            string            `gorm:"column:description;not null;default:''"`
	Status                 enums.IssueStatus `gorm:"column:status;type:text;not null"`
	Source                 enums.IssueSource `gorm:"column:source;type:text;not null;uniqueIndex:idx_issues_source_conversation,priority:1"`
	ExternalConversationID *string           `gorm:"column:external_conversation_id;uniqueIndex:idx_issues_source_conversation,priority:2"`
	ReporterEmail          *string           `gorm:"column:reporter_email"`
	ReporterName           *string           `gorm:"column:reporter_name"`
	TriagedBy              *uuid.UUID        `gorm:"column:triaged_by;type:uuid"`
	TriagedAt              *time.Time        `gorm:"column:triaged_at"`
	CreatedAt              time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Issue) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
