package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

// SearchMessages performs a full-text search on archived message bodies.
func (db *DB) SearchMessages(query string, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.conversation_id, m.msg_id, m.sender_id, m.sender_name, m.sender_role,
		       m.body, m.image_url, m.is_read, m.read_at, m.reactions, m.created_at,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var role, reactions string
		var readAt sql.NullInt64
		var createdAt int64
		if err := rows.Scan(
			&r.Message.ConversationID, &r.Message.ID, &r.Message.SenderID,
			&r.Message.SenderName, &role, &r.Message.Body, &r.Message.ImageURL,
			&r.Message.IsRead, &readAt, &reactions, &createdAt, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.SenderRole = chat.Role(role)
		if readAt.Valid {
			t := time.UnixMilli(readAt.Int64)
			r.Message.ReadAt = &t
		}
		if reactions != "" && reactions != "[]" {
			if err := json.Unmarshal([]byte(reactions), &r.Message.Reactions); err != nil {
				return nil, err
			}
		}
		r.Message.CreatedAt = time.UnixMilli(createdAt)
		results = append(results, r)
	}
	return results, rows.Err()
}
