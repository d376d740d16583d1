package chat

import (
	"sort"
	"time"
)

// TypingEvent signals that a user started or stopped typing in a conversation.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// Reactor identifies a user inside a reaction-update event.
type Reactor struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ReactionEvent carries the complete current reaction state for a message.
// The per-emoji user lists are authoritative, not a delta: reconciliation
// replaces the message's reaction list wholesale, so applying two events in
// either order leaves the last-applied state.
type ReactionEvent struct {
	ConversationID string               `json:"conversationId"`
	MessageID      string               `json:"messageId"`
	Emoji          string               `json:"emoji"`
	Action         string               `json:"action"` // "added" or "removed"
	Reactions      map[string][]Reactor `json:"reactions"`
}

// ReadEvent signals that a participant has read the conversation.
type ReadEvent struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// FlattenReactions converts the event's per-emoji user lists into the
// message's reaction list. Emoji keys are sorted for a deterministic order;
// within an emoji the event's user order is preserved.
func (e ReactionEvent) FlattenReactions() []Reaction {
	emojis := make([]string, 0, len(e.Reactions))
	for emoji := range e.Reactions {
		emojis = append(emojis, emoji)
	}
	sort.Strings(emojis)

	var out []Reaction
	for _, emoji := range emojis {
		for _, u := range e.Reactions[emoji] {
			out = append(out, Reaction{
				Emoji:       emoji,
				UserID:      u.ID,
				DisplayName: displayName(u),
			})
		}
	}
	return out
}

func displayName(u Reactor) string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}
