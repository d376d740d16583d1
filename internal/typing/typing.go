package typing

import (
	"sort"
	"sync"
)

// Set tracks which users are currently typing, per conversation. The state
// is ephemeral: it exists only between a typing-start and typing-stop push
// event (or a channel disconnect) and is never persisted.
type Set struct {
	mu    sync.Mutex
	byCnv map[string]map[string]bool
}

// NewSet creates an empty typing set.
func NewSet() *Set {
	return &Set{byCnv: make(map[string]map[string]bool)}
}

// Apply records a typing-state change. Returns true when the conversation's
// typing set actually changed.
func (s *Set) Apply(conversationID, userID string, isTyping bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.byCnv[conversationID]
	if isTyping {
		if users == nil {
			users = make(map[string]bool)
			s.byCnv[conversationID] = users
		}
		if users[userID] {
			return false
		}
		users[userID] = true
		return true
	}

	if users == nil || !users[userID] {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.byCnv, conversationID)
	}
	return true
}

// Typing returns a sorted snapshot of users typing in the conversation.
func (s *Set) Typing(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.byCnv[conversationID]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Clear drops all typing state, e.g. when the channel disconnects and stop
// events can no longer arrive.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCnv = make(map[string]map[string]bool)
}
