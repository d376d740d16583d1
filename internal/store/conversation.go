package store

import (
	"database/sql"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

// UpsertConversation inserts or updates a conversation record.
func (db *DB) UpsertConversation(c *chat.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, kind, title, counterpart_id, counterpart_name, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			counterpart_id = excluded.counterpart_id,
			counterpart_name = excluded.counterpart_name,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Kind), c.Title, c.CounterpartID, c.CounterpartName,
		c.UnreadCount, c.LastMessageAt.UnixMilli(), c.LastMessagePreview, now)
	return err
}

// TouchConversation bumps a conversation's last-message fields without
// overwriting its metadata, creating a stub row if the conversation has
// never been listed.
func (db *DB) TouchConversation(id string, lastMessageAt time.Time, preview string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at > conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		id, lastMessageAt.UnixMilli(), preview, now)
	return err
}

// ListConversations returns conversations sorted by last message descending.
func (db *DB) ListConversations(limit, offset int) ([]chat.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, kind, title, counterpart_id, counterpart_name, unread_count, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by id, or nil when unknown.
func (db *DB) GetConversation(id string) (*chat.Conversation, error) {
	row := db.QueryRow(`
		SELECT id, kind, title, counterpart_id, counterpart_name, unread_count, last_message_at, last_message_preview
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetUnreadCount persists a backend-reported unread count.
func (db *DB) SetUnreadCount(id string, n int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, unread_count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET unread_count = excluded.unread_count, updated_at = excluded.updated_at`,
		id, n, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (chat.Conversation, error) {
	var c chat.Conversation
	var kind string
	var lastAt int64
	if err := r.Scan(&c.ID, &kind, &c.Title, &c.CounterpartID, &c.CounterpartName,
		&c.UnreadCount, &lastAt, &c.LastMessagePreview); err != nil {
		return chat.Conversation{}, err
	}
	c.Kind = chat.ConversationKind(kind)
	c.LastMessageAt = time.UnixMilli(lastAt)
	return c, nil
}
