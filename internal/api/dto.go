package api

import (
	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/models"
)

// Response envelopes. Single objects are wrapped in "results"; list
// responses additionally carry "total_entries".

type resultEnvelope struct {
	Results any `json:"results"`
}

type listEnvelope struct {
	Results      any `json:"results"`
	TotalEntries int `json:"total_entries"`
}

type boolResult struct {
	Success bool `json:"success" example:"true" validate:"required"`
}

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	Name string `json:"name,omitempty" example:"Support thread"`
}

// UpdateConversationRequest is the request body for renaming a conversation.
type UpdateConversationRequest struct {
	Name string `json:"name" example:"Renamed thread" validate:"required"`
}

// AddMessageRequest is the request body for appending a message.
type AddMessageRequest struct {
	Role     string            `json:"role" example:"user" validate:"required"`
	Content  string            `json:"content" example:"Hello, world!" validate:"required"`
	ParentID *uuid.UUID        `json:"parent_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// UpdateMessageRequest is the request body for a partial message update.
// A nil Content keeps the stored content; Metadata entries are merged.
type UpdateMessageRequest struct {
	Content  *string           `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConversationDetail is a conversation together with its full thread.
type ConversationDetail struct {
	models.Conversation
	Messages []models.Message `json:"messages"`
}
