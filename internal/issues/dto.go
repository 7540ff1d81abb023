package issues

import (
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/db/models"
	"github.com/sapira-ai/pharo-backend/pkg/enums"
)

// IssueDTO is the API shape of a tracked issue.
type IssueDTO struct {
	ID                     uuid.UUID         `json:"id"`
	OrganizationID         uuid.UUID         `json:"organization_id"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	Status                 enums.IssueStatus `json:"status"`
	Source                 enums.IssueSource `json:"source"`
	ExternalConversationID *string           `json:"external_conversation_id,omitempty"`
	ReporterEmail          *string           `json:"reporter_email,omitempty"`
	ReporterName           *string           `json:"reporter_name,omitempty"`
	TriagedBy              *uuid.UUID        `json:"triaged_by,omitempty"`
	TriagedAt              *time.Time        `json:"triaged_at,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func FromModel(m models.Issue) IssueDTO {
	return IssueDTO{
		ID:                     m.ID,
		OrganizationID:         m.OrganizationID,
		Title:                  m.Title,
		Description:            m.Description,
		Status:                 m.Status,
		Source:                 m.Source,
		ExternalConversationID: m.ExternalConversationID,
		ReporterEmail:          m.ReporterEmail,
		ReporterName:           m.ReporterName,
		TriagedBy:              m.TriagedBy,
		TriagedAt:              m.TriagedAt,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

// TriageRequest is the body of the triage endpoint.
type TriageRequest struct {
	Decision string `json:"decision" validate:"required,triage_decision"`
}
