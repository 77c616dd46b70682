package store

import (
	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/models"
)

// ConversationStore defines the persistence operations for conversations
// and messages. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type ConversationStore interface {
	InsertConversation(c *models.Conversation) error
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	ListConversations(ids []uuid.UUID, offset, limit int) ([]models.Conversation, int, error)
	RenameConversation(id uuid.UUID, name string) error
	DeleteConversation(id uuid.UUID) error

	InsertMessage(m *models.Message) error
	GetMessage(convID, msgID uuid.UUID) (*models.Message, error)
	UpdateMessage(m *models.Message) error
	Messages(convID uuid.UUID) ([]models.Message, error)

	Search(query string, limit int) ([]SearchHit, error)
	Close() error
}

// Verify *DB satisfies ConversationStore at compile time.
var _ ConversationStore = (*DB)(nil)
