package integrations

import "time"

const (
	// TeamsSecretHeader carries the shared secret configured for the Teams bridge.
	TeamsSecretHeader    = "X-Pharo-Integration-Secret"
	SlackSignatureHeader = "X-Slack-Signature"
	SlackTimestampHeader = "X-Slack-Request-Timestamp"
)

// ConversationRequest is a conversation forwarded by a chat integration.
// Either OrganizationID or OrganizationSlug identifies the tenant.
type ConversationRequest struct {
	OrganizationID   string                `json:"organization_id" validate:"omitempty,uuid"`
	OrganizationSlug string                `json:"organization_slug" validate:"omitempty,max=120,slug"`
	ConversationID   string                `json:"conversation_id" validate:"required,max=512"`
	Title            string                `json:"title" validate:"omitempty,max=500"`
	Messages         []ConversationMessage `json:"messages" validate:"required,min=1,dive"`
}

type ConversationMessage struct {
	AuthorName  string     `json:"author_name" validate:"omitempty,max=200"`
	AuthorEmail string     `json:"author_email" validate:"omitempty,email"`
	Text        string     `json:"text" validate:"required"`
	SentAt      *time.Time `json:"sent_at"`
}
