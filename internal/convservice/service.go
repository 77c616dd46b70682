// Package convservice coordinates store operations for conversations and
// enforces the input rules of the API: accepted roles, non-empty content,
// and parent messages that stay inside their conversation.
package convservice

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

// List pagination bounds, matching the public API contract.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// EventFunc is called after a successful mutation. kind is one of
// "conversation.created", "conversation.updated", "conversation.deleted",
// "message.added", "message.updated".
type EventFunc func(kind string, data map[string]string)

// Service coordinates store operations.
type Service struct {
	db     store.ConversationStore
	notify EventFunc
}

// NewService creates a new conversation service.
func NewService(db store.ConversationStore) *Service {
	return &Service{db: db}
}

// OnEvent registers a callback invoked after successful mutations.
func (s *Service) OnEvent(fn EventFunc) {
	s.notify = fn
}

// CreateConversation creates a new, initially empty conversation.
// The name is optional.
func (s *Service) CreateConversation(_ context.Context, name string) (*models.Conversation, error) {
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.InsertConversation(c); err != nil {
		return nil, err
	}
	s.emit("conversation.created", map[string]string{"id": c.ID.String()})
	return c, nil
}

// ListConversations returns a page of conversations plus the total number
// of matching entries. limit is clamped to [1, MaxListLimit] and defaults
// to DefaultListLimit; a negative offset is treated as zero.
func (s *Service) ListConversations(_ context.Context, ids []uuid.UUID, offset, limit int) ([]models.Conversation, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.db.ListConversations(ids, offset, limit)
}

// GetConversation returns a conversation and its messages in creation
// order.
func (s *Service) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, []models.Message, error) {
	c, err := s.db.GetConversation(id)
	if err != nil {
		return nil, nil, mapNoRows(err)
	}
	msgs, err := s.db.Messages(id)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

// UpdateConversation renames an existing conversation.
func (s *Service) UpdateConversation(_ context.Context, id uuid.UUID, name string) (*models.Conversation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", apperr.ErrInvalid)
	}
	if err := s.db.RenameConversation(id, name); err != nil {
		return nil, mapNoRows(err)
	}
	c, err := s.db.GetConversation(id)
	if err != nil {
		return nil, mapNoRows(err)
	}
	s.emit("conversation.updated", map[string]string{"id": id.String()})
	return c, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *Service) DeleteConversation(_ context.Context, id uuid.UUID) error {
	if err := s.db.DeleteConversation(id); err != nil {
		return mapNoRows(err)
	}
	s.emit("conversation.deleted", map[string]string{"id": id.String()})
	return nil
}

// AddMessage appends a message to a conversation. content must be
// non-empty, role must be an accepted role, and parentID (when given)
// must reference a message in the same conversation.
func (s *Service) AddMessage(_ context.Context, convID uuid.UUID, role, content string, parentID *uuid.UUID, metadata map[string]string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", apperr.ErrInvalid)
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: invalid role %q", apperr.ErrInvalid, role)
	}
	if _, err := s.db.GetConversation(convID); err != nil {
		return nil, mapNoRows(err)
	}
	if parentID != nil {
		if _, err := s.db.GetMessage(convID, *parentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: parent message not in conversation", apperr.ErrInvalid)
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	m := &models.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		ParentID:       parentID,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.InsertMessage(m); err != nil {
		return nil, err
	}
	s.emit("message.added", map[string]string{
		"conversation_id": convID.String(),
		"message_id":      m.ID.String(),
	})
	return m, nil
}

// UpdateMessage applies a partial update to an existing message: a nil
// content keeps the stored content, and metadata entries are merged over
// the existing ones.
func (s *Service) UpdateMessage(_ context.Context, convID, msgID uuid.UUID, content *string, metadata map[string]string) (*models.Message, error) {
	m, err := s.db.GetMessage(convID, msgID)
	if err != nil {
		return nil, mapNoRows(err)
	}

	if content != nil {
		if *content == "" {
			return nil, fmt.Errorf("%w: content cannot be empty", apperr.ErrInvalid)
		}
		m.Content = *content
	}
	if len(metadata) > 0 {
		if m.Metadata == nil {
			m.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			m.Metadata[k] = v
		}
	}
	m.UpdatedAt = time.Now().UTC()

	if err := s.db.UpdateMessage(m); err != nil {
		return nil, mapNoRows(err)
	}
	s.emit("message.updated", map[string]string{
		"conversation_id": convID.String(),
		"message_id":      msgID.String(),
	})
	return m, nil
}

// Search delegates full-text search over message content to the store.
func (s *Service) Search(_ context.Context, query string, limit int) ([]store.SearchHit, error) {
	return s.db.Search(query, limit)
}

// ExportCSV streams every message of a conversation as CSV.
func (s *Service) ExportCSV(ctx context.Context, convID uuid.UUID, w io.Writer) error {
	_, msgs, err := s.GetConversation(ctx, convID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "role", "content", "parent_id", "metadata", "created_at"}); err != nil {
		return fmt.Errorf("convservice: write csv header: %w", err)
	}
	for _, m := range msgs {
		parent := ""
		if m.ParentID != nil {
			parent = m.ParentID.String()
		}
		meta := ""
		if len(m.Metadata) > 0 {
			raw, jerr := json.Marshal(m.Metadata)
			if jerr != nil {
				return fmt.Errorf("convservice: encode metadata: %w", jerr)
			}
			meta = string(raw)
		}
		record := []string{
			m.ID.String(),
			m.Role,
			m.Content,
			parent,
			meta,
			m.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("convservice: write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) emit(kind string, data map[string]string) {
	if s.notify != nil {
		s.notify(kind, data)
	}
}

// mapNoRows converts the store's no-rows signal into the shared not-found
// sentinel.
func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}
