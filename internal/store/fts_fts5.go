//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			message_id UNINDEXED,
			conversation_id UNINDEXED,
			role UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, msgID, convID, role, content string) error {
	_, _ = tx.Exec(`DELETE FROM messages_fts WHERE message_id = ?`, msgID)
	_, err := tx.Exec(`INSERT INTO messages_fts (message_id, conversation_id, role, content) VALUES (?, ?, ?, ?)`,
		msgID, convID, role, content)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteConversation(tx *sql.Tx, convID string) {
	_, _ = tx.Exec(`DELETE FROM messages_fts WHERE conversation_id = ?`, convID)
}

// Search performs an FTS5 full-text search over message content and
// returns matching hits with snippets.
func (db *DB) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT conversation_id,
		       message_id,
		       role,
		       snippet(messages_fts, 3, '<b>', '</b>', '...', 64)
		FROM messages_fts
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()
	return collectHits(rows)
}

func collectHits(rows *sql.Rows) ([]SearchHit, error) {
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
