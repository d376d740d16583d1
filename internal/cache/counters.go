package cache

import "sync"

// Counters tracks per-conversation unread counts independently of the
// message list. The counts are a locally adjusted copy between backend
// refreshes: incremented on inbound pushes from another sender, zeroed when
// the counterpart's read event arrives or a mark-as-read call succeeds.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int)}
}

// Increment bumps the unread count for a conversation and returns it.
func (c *Counters) Increment(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[conversationID]++
	return c.counts[conversationID]
}

// Zero resets the unread count for a conversation, returning the old value.
func (c *Counters) Zero(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.counts[conversationID]
	delete(c.counts, conversationID)
	return old
}

// Set overwrites the count with a backend-reported value.
func (c *Counters) Set(conversationID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		delete(c.counts, conversationID)
		return
	}
	c.counts[conversationID] = n
}

// Get returns the current count for a conversation.
func (c *Counters) Get(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[conversationID]
}

// Total returns the sum across all conversations.
func (c *Counters) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}
