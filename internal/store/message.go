package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

// ArchiveMessage inserts or updates a message (idempotent on
// conversation_id + msg_id), mirroring the in-memory cache's
// replace-or-append rule.
func (db *DB) ArchiveMessage(m *chat.Message) error {
	reactions, err := json.Marshal(m.Reactions)
	if err != nil {
		return err
	}
	var readAt any
	if m.ReadAt != nil {
		readAt = m.ReadAt.UnixMilli()
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, sender_role, body, image_url, is_read, read_at, reactions, created_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			image_url = excluded.image_url,
			is_read = excluded.is_read,
			read_at = excluded.read_at,
			reactions = excluded.reactions`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, string(m.SenderRole),
		m.Body, m.ImageURL, m.IsRead, readAt, string(reactions), m.CreatedAt.UnixMilli(), now)
	return err
}

// ArchiveBatch stores a whole fetched page in one transaction.
func (db *DB) ArchiveBatch(msgs []chat.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		reactions, err := json.Marshal(m.Reactions)
		if err != nil {
			return err
		}
		var readAt any
		if m.ReadAt != nil {
			readAt = m.ReadAt.UnixMilli()
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, sender_role, body, image_url, is_read, read_at, reactions, created_at, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				image_url = excluded.image_url,
				is_read = excluded.is_read,
				read_at = excluded.read_at,
				reactions = excluded.reactions`,
			m.ConversationID, m.ID, m.SenderID, m.SenderName, string(m.SenderRole),
			m.Body, m.ImageURL, m.IsRead, readAt, string(reactions), m.CreatedAt.UnixMilli(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns archived messages for a conversation using keyset
// pagination by creation time, newest first.
func (db *DB) ListMessages(conversationID string, before time.Time, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	beforeMs := before.UnixMilli()
	if before.IsZero() {
		beforeMs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, msg_id, sender_id, sender_name, sender_role, body, image_url, is_read, read_at, reactions, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, beforeMs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkOutboundRead flips the viewer's own unread archived messages to read,
// mirroring a counterpart read event.
func (db *DB) MarkOutboundRead(conversationID, selfID string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND sender_id = ? AND is_read = 0`,
		at.UnixMilli(), conversationID, selfID)
	return err
}

// SetReactions overwrites the archived reaction list for a message.
func (db *DB) SetReactions(conversationID, msgID string, reactions []chat.Reaction) error {
	buf, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		UPDATE messages SET reactions = ? WHERE conversation_id = ? AND msg_id = ?`,
		string(buf), conversationID, msgID)
	return err
}

func scanMessage(r rowScanner) (chat.Message, error) {
	var m chat.Message
	var role, reactions string
	var readAt sql.NullInt64
	var createdAt int64
	if err := r.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.SenderName, &role,
		&m.Body, &m.ImageURL, &m.IsRead, &readAt, &reactions, &createdAt); err != nil {
		return chat.Message{}, err
	}
	m.SenderRole = chat.Role(role)
	if readAt.Valid {
		t := time.UnixMilli(readAt.Int64)
		m.ReadAt = &t
	}
	if reactions != "" && reactions != "[]" {
		if err := json.Unmarshal([]byte(reactions), &m.Reactions); err != nil {
			return chat.Message{}, err
		}
	}
	m.CreatedAt = time.UnixMilli(createdAt)
	return m, nil
}
