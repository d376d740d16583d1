package cache

import (
	"sync"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
)

// PageCache holds the paginated message set for a single conversation and
// exposes a flattened, chronologically ordered view. Pages are stored the
// way the backend returns them (newest page first, newest message first
// within a page); Flatten reverses into oldest-first for display.
//
// A cache is owned by the view that opened the conversation: it is built on
// open and discarded on close. All mutators take the cache lock and do no
// I/O while holding it, so push events applied in arrival order observe a
// deterministic cache state.
type PageCache struct {
	mu             sync.Mutex
	conversationID string
	pages          []chat.Page
	ids            map[string]bool
	inFlight       bool
	loaded         bool
}

// New creates an empty cache for the given conversation.
func New(conversationID string) *PageCache {
	return &PageCache{
		conversationID: conversationID,
		ids:            make(map[string]bool),
	}
}

// ConversationID returns the conversation this cache belongs to.
func (c *PageCache) ConversationID() string {
	return c.conversationID
}

// SetInitial installs the first (newest) page, replacing any prior state.
func (c *PageCache) SetInitial(p chat.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = []chat.Page{p}
	c.ids = make(map[string]bool, len(p.Data))
	for _, m := range p.Data {
		c.ids[m.ID] = true
	}
	c.loaded = true
}

// AddOlderPage appends an older page after the existing ones. Messages whose
// IDs are already cached (delivered by push while the fetch was in flight)
// are skipped so the flattened view never repeats an identifier.
func (c *PageCache) AddOlderPage(p chat.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deduped := p
	deduped.Data = make([]chat.Message, 0, len(p.Data))
	for _, m := range p.Data {
		if c.ids[m.ID] {
			continue
		}
		c.ids[m.ID] = true
		deduped.Data = append(deduped.Data, m)
	}
	c.pages = append(c.pages, deduped)
}

// Loaded reports whether the initial page has resolved.
func (c *PageCache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Empty reports whether the conversation has no messages at all. The UI
// renders an explicit empty state for this, not a blank list.
func (c *PageCache) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pages {
		if len(p.Data) > 0 {
			return false
		}
	}
	return true
}

// HasNext reports whether an older page remains to be fetched.
func (c *PageCache) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pages) == 0 {
		return false
	}
	return c.pages[len(c.pages)-1].HasNext()
}

// NextPage returns the page number to request for the next older fetch.
func (c *PageCache) NextPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pages) == 0 {
		return 1
	}
	return c.pages[len(c.pages)-1].Pagination.Page + 1
}

// BeginFetch marks a pagination fetch as in flight. It returns false if one
// is already running; callers must not issue a second concurrent request.
func (c *PageCache) BeginFetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

// EndFetch clears the in-flight flag.
func (c *PageCache) EndFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}

// InFlight reports whether a pagination fetch is currently running.
func (c *PageCache) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Pages returns a snapshot of the raw backend pages, newest first.
func (c *PageCache) Pages() []chat.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Page, len(c.pages))
	copy(out, c.pages)
	return out
}

// Flatten returns all cached messages oldest-first with page boundaries
// erased. Messages with equal timestamps keep their original page and slot
// order; there is no resort by identifier.
func (c *PageCache) Flatten() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, p := range c.pages {
		n += len(p.Data)
	}
	out := make([]chat.Message, 0, n)
	for _, p := range c.pages {
		out = append(out, p.Data...)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the number of cached messages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// ApplyNew reconciles a pushed message. If the identifier is already cached
// the existing entry is replaced in place, which absorbs server echoes of
// optimistic sends and duplicate delivery without a second bubble. Otherwise
// the message is inserted at the head of the newest page and that page's
// reported total grows by one. Relative order of existing messages never
// changes. Returns true when an existing entry was replaced.
func (c *PageCache) ApplyNew(msg chat.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ids[msg.ID] {
		for pi := range c.pages {
			for mi := range c.pages[pi].Data {
				if c.pages[pi].Data[mi].ID == msg.ID {
					c.pages[pi].Data[mi] = msg
					return true
				}
			}
		}
		return true
	}

	if len(c.pages) == 0 {
		c.pages = []chat.Page{{
			Data:       nil,
			Pagination: chat.Pagination{Page: 1, Limit: 0, Total: 0, TotalPages: 1},
		}}
		c.loaded = true
	}
	first := &c.pages[0]
	first.Data = append([]chat.Message{msg}, first.Data...)
	first.Pagination.Total++
	c.ids[msg.ID] = true
	return false
}

// ApplyReactions replaces the reaction list of the identified message. The
// caller passes the full current state from the event, never a delta.
// Returns false when the message is not cached.
func (c *PageCache) ApplyReactions(messageID string, reactions []chat.Reaction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ids[messageID] {
		return false
	}
	for pi := range c.pages {
		for mi := range c.pages[pi].Data {
			if c.pages[pi].Data[mi].ID == messageID {
				c.pages[pi].Data[mi].Reactions = reactions
				return true
			}
		}
	}
	return false
}

// MarkOutboundRead flags all of the viewer's own unread messages as read,
// recording the given read time. Already-read messages are untouched, so
// reapplying the same read event is a no-op. Returns how many messages
// changed.
func (c *PageCache) MarkOutboundRead(selfID string, at time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for pi := range c.pages {
		for mi := range c.pages[pi].Data {
			m := &c.pages[pi].Data[mi]
			if m.SenderID == selfID && !m.IsRead {
				m.IsRead = true
				t := at
				m.ReadAt = &t
				changed++
			}
		}
	}
	return changed
}
