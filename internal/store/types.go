package store

import "github.com/ssahak93/autochat/internal/chat"

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	Body           string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
}

// SearchResult holds an archived message with a search snippet.
type SearchResult struct {
	Message chat.Message
	Snippet string
}
