package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/models"
)

// SearchHit represents one full-text search match.
type SearchHit struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	Role           string    `json:"role"`
	Snippet        string    `json:"snippet"`
}

// InsertConversation stores a new conversation row.
func (db *DB) InsertConversation(c *models.Conversation) error {
	_, err := db.conn.Exec(`
		INSERT INTO conversations (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, c.ID.String(), c.Name, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert conversation: %w", err)
	}
	return nil
}

// GetConversation returns a single conversation with its message count.
// Returns sql.ErrNoRows when the id is unknown.
func (db *DB) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	row := db.conn.QueryRow(`
		SELECT c.id, c.name, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.id = ?
	`, id.String())
	return scanConversation(row)
}

// ListConversations returns a page of conversations ordered by creation
// time (newest first) and the total number of matching rows. An empty ids
// slice matches all conversations.
func (db *DB) ListConversations(ids []uuid.UUID, offset, limit int) ([]models.Conversation, int, error) {
	where := ""
	args := make([]any, 0, len(ids)+2)
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id.String())
		}
		where = " WHERE c.id IN (" + strings.Join(placeholders, ", ") + ")"
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM conversations c`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count conversations: %w", err)
	}

	query := `
		SELECT c.id, c.name, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c` + where + `
		ORDER BY c.created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, offset)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// RenameConversation updates the conversation name and bumps updated_at.
// Returns sql.ErrNoRows when the id is unknown.
func (db *DB) RenameConversation(id uuid.UUID, name string) error {
	res, err := db.conn.Exec(`
		UPDATE conversations SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, name, id.String())
	if err != nil {
		return fmt.Errorf("store: rename conversation: %w", err)
	}
	return requireRow(res)
}

// DeleteConversation removes a conversation, its messages (FK cascade),
// and their FTS entries within a transaction.
func (db *DB) DeleteConversation(id uuid.UUID) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	ftsDeleteConversation(tx, id.String())
	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertMessage stores a message and its FTS entry within a transaction.
// The caller is responsible for role/content/parent validation.
func (db *DB) InsertMessage(m *models.Message) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	metaJSON, _ := json.Marshal(m.Metadata)

	var parent any
	if m.ParentID != nil {
		parent = m.ParentID.String()
	}

	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, parent_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.ConversationID.String(), m.Role, m.Content, parent, string(metaJSON), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}

	if err := ftsUpsert(tx, m.ID.String(), m.ConversationID.String(), m.Role, m.Content); err != nil {
		return err
	}

	// Keep the parent conversation's updated_at in step with its thread.
	_, _ = tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, m.UpdatedAt, m.ConversationID.String())

	return tx.Commit()
}

// GetMessage returns one message scoped to a conversation.
// Returns sql.ErrNoRows when no such message exists in that conversation.
func (db *DB) GetMessage(convID, msgID uuid.UUID) (*models.Message, error) {
	row := db.conn.QueryRow(`
		SELECT id, conversation_id, role, content, parent_id, metadata, created_at, updated_at
		FROM messages
		WHERE id = ? AND conversation_id = ?
	`, msgID.String(), convID.String())
	return scanMessage(row)
}

// UpdateMessage rewrites content and metadata of an existing message and
// refreshes its FTS entry.
func (db *DB) UpdateMessage(m *models.Message) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	metaJSON, _ := json.Marshal(m.Metadata)

	res, err := tx.Exec(`
		UPDATE messages SET content = ?, metadata = ?, updated_at = ? WHERE id = ? AND conversation_id = ?
	`, m.Content, string(metaJSON), m.UpdatedAt, m.ID.String(), m.ConversationID.String())
	if err != nil {
		return fmt.Errorf("store: update message: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if err := ftsUpsert(tx, m.ID.String(), m.ConversationID.String(), m.Role, m.Content); err != nil {
		return err
	}

	return tx.Commit()
}

// Messages returns every message of a conversation in creation order.
func (db *DB) Messages(convID uuid.UUID) ([]models.Message, error) {
	rows, err := db.conn.Query(`
		SELECT id, conversation_id, role, content, parent_id, metadata, created_at, updated_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`, convID.String())
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var id string
	if err := row.Scan(&id, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("store: parse conversation id %q: %w", id, err)
	}
	c.ID = parsed
	return &c, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var id, convID, metaJSON string
	var parent sql.NullString
	if err := row.Scan(&id, &convID, &m.Role, &m.Content, &parent, &metaJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("store: parse message id %q: %w", id, err)
	}
	m.ID = parsed

	parsedConv, err := uuid.Parse(convID)
	if err != nil {
		return nil, fmt.Errorf("store: parse conversation id %q: %w", convID, err)
	}
	m.ConversationID = parsedConv

	if parent.Valid {
		p, err := uuid.Parse(parent.String)
		if err != nil {
			return nil, fmt.Errorf("store: parse parent id %q: %w", parent.String, err)
		}
		m.ParentID = &p
	}

	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode metadata: %w", err)
		}
	}
	return &m, nil
}

// requireRow converts a zero-row UPDATE/DELETE into sql.ErrNoRows so the
// service layer can map it to a not-found error.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
