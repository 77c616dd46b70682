//go:build !sqlite_fts5

package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on messages.content.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error {
	// Content is already stored in the messages table; nothing extra to do.
	return nil
}

func ftsDeleteConversation(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search over message content (fallback when
// FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT conversation_id, id, role, substr(content, 1, 200)
		FROM messages
		WHERE content LIKE ?
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		var convID, msgID string
		if err := rows.Scan(&convID, &msgID, &h.Role, &h.Snippet); err != nil {
			return nil, err
		}
		c, err := uuid.Parse(convID)
		if err != nil {
			return nil, fmt.Errorf("store: parse conversation id %q: %w", convID, err)
		}
		m, err := uuid.Parse(msgID)
		if err != nil {
			return nil, fmt.Errorf("store: parse message id %q: %w", msgID, err)
		}
		h.ConversationID, h.MessageID = c, m
		out = append(out, h)
	}
	return out, rows.Err()
}
