package sync

import (
	"context"
	"sync"
	"time"

	"github.com/ssahak93/autochat/internal/bus"
	"github.com/ssahak93/autochat/internal/cache"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/store"
	"github.com/ssahak93/autochat/internal/typing"
	"go.uber.org/zap"
)

// Engine reconciles push events into client state: the attached
// per-conversation page caches, the unread counters, the typing set and the
// local archive. It subscribes to "push." events on the bus and processes
// them one at a time in arrival order; cache mutation happens before any
// archive I/O so the in-memory view is deterministic relative to delivery.
type Engine struct {
	db       *store.DB
	bus      *bus.Bus
	counters *cache.Counters
	typing   *typing.Set
	selfID   string
	logger   *zap.Logger
	cancel   context.CancelFunc

	mu       sync.Mutex
	attached map[string]*cache.PageCache
}

// NewEngine creates a new reconciliation engine. selfID is the viewer's own
// user id, used to ignore echoes of the viewer's other sessions.
func NewEngine(db *store.DB, b *bus.Bus, counters *cache.Counters, typ *typing.Set, selfID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:       db,
		bus:      b,
		counters: counters,
		typing:   typ,
		selfID:   selfID,
		logger:   logger,
		attached: make(map[string]*cache.PageCache),
	}
}

// Attach registers the active view's cache for its conversation. Push
// events for conversations without an attached cache still update counters
// and the archive but never touch any cache.
func (e *Engine) Attach(c *cache.PageCache) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached[c.ConversationID()] = c
}

// Detach removes the conversation's cache; the view is being torn down and
// no further mutations may land on it.
func (e *Engine) Detach(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attached, conversationID)
}

func (e *Engine) cacheFor(conversationID string) *cache.PageCache {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attached[conversationID]
}

// Start subscribes to inbound push and channel lifecycle events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	pushCh, unsubPush := e.bus.Subscribe("push.", 256)
	chanCh, unsubChan := e.bus.Subscribe("channel.", 16)

	go func() {
		defer unsubPush()
		defer unsubChan()
		for {
			select {
			case evt := <-pushCh:
				e.handleEvent(evt)
			case evt := <-chanCh:
				if evt.Kind == bus.KindChannelDisconnected {
					// Stop events can no longer arrive; drop ephemeral state.
					e.typing.Clear()
					e.bus.Publish(bus.Event{Kind: bus.KindTypingChanged, Timestamp: time.Now()})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// ApplyLocalEcho reconciles a locally originated message (the optimistic
// echo of a queued send, or the server's response to one) exactly like an
// inbound push. The sender is the viewer, so no unread counter moves; when
// the realtime echo for the same id arrives later it replaces this entry in
// place.
func (e *Engine) ApplyLocalEcho(msg chat.Message) {
	e.applyMessage(msg)
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushMessage:
		msg, ok := evt.Payload.(chat.Message)
		if !ok {
			return
		}
		e.applyMessage(msg)
	case bus.KindPushReaction:
		re, ok := evt.Payload.(chat.ReactionEvent)
		if !ok {
			return
		}
		e.applyReaction(re)
	case bus.KindPushRead:
		rd, ok := evt.Payload.(chat.ReadEvent)
		if !ok {
			return
		}
		e.applyRead(rd)
	case bus.KindPushTyping:
		te, ok := evt.Payload.(chat.TypingEvent)
		if !ok {
			return
		}
		e.applyTyping(te)
	}
}

func (e *Engine) applyMessage(msg chat.Message) {
	if c := e.cacheFor(msg.ConversationID); c != nil {
		c.ApplyNew(msg)
	}

	if msg.SenderID != e.selfID {
		n := e.counters.Increment(msg.ConversationID)
		e.bus.Publish(bus.Event{
			Kind:      bus.KindUnreadChanged,
			Timestamp: time.Now(),
			Payload:   UnreadChange{ConversationID: msg.ConversationID, Count: n},
		})
	}

	if err := e.db.ArchiveMessage(&msg); err != nil {
		e.logger.Error("failed to archive message", zap.Error(err), zap.String("msg_id", msg.ID))
	}
	if err := e.db.TouchConversation(msg.ConversationID, msg.CreatedAt, preview(msg)); err != nil {
		e.logger.Error("failed to touch conversation", zap.Error(err), zap.String("conversation", msg.ConversationID))
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": msg.ConversationID,
			"msg_id":          msg.ID,
		},
	})
}

func (e *Engine) applyReaction(re chat.ReactionEvent) {
	flat := re.FlattenReactions()

	if c := e.cacheFor(re.ConversationID); c != nil {
		c.ApplyReactions(re.MessageID, flat)
	}

	if err := e.db.SetReactions(re.ConversationID, re.MessageID, flat); err != nil {
		e.logger.Error("failed to archive reactions", zap.Error(err), zap.String("msg_id", re.MessageID))
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": re.ConversationID,
			"msg_id":          re.MessageID,
		},
	})
}

func (e *Engine) applyRead(rd chat.ReadEvent) {
	// Read receipts from the viewer's own other sessions would only churn
	// the UI; the counterpart's receipt is the one that flips outbound
	// messages to read.
	if rd.UserID == e.selfID {
		return
	}

	at := time.Now()
	if rd.ReadAt != nil {
		at = *rd.ReadAt
	}

	if c := e.cacheFor(rd.ConversationID); c != nil {
		c.MarkOutboundRead(e.selfID, at)
	}

	if err := e.db.MarkOutboundRead(rd.ConversationID, e.selfID, at); err != nil {
		e.logger.Error("failed to archive read state", zap.Error(err), zap.String("conversation", rd.ConversationID))
	}

	e.counters.Zero(rd.ConversationID)
	e.bus.Publish(bus.Event{
		Kind:      bus.KindUnreadChanged,
		Timestamp: time.Now(),
		Payload:   UnreadChange{ConversationID: rd.ConversationID, Count: 0},
	})
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": rd.ConversationID},
	})
}

func (e *Engine) applyTyping(te chat.TypingEvent) {
	if te.UserID == e.selfID {
		return
	}
	if e.typing.Apply(te.ConversationID, te.UserID, te.IsTyping) {
		e.bus.Publish(bus.Event{
			Kind:      bus.KindTypingChanged,
			Timestamp: time.Now(),
			Payload:   te,
		})
	}
}

// UnreadChange is the payload for unread counter events.
type UnreadChange struct {
	ConversationID string
	Count          int
}

func preview(m chat.Message) string {
	if m.Body != "" {
		return truncate(m.Body, 100)
	}
	if m.ImageURL != "" {
		return "[image]"
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
