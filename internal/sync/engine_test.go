package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ssahak93/autochat/internal/bus"
	"github.com/ssahak93/autochat/internal/cache"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/store"
	"github.com/ssahak93/autochat/internal/typing"
)

const selfID = "self"

type engineFixture struct {
	engine   *Engine
	bus      *bus.Bus
	db       *store.DB
	counters *cache.Counters
	typing   *typing.Set
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "autochat.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	b := bus.New()
	counters := cache.NewCounters()
	typ := typing.NewSet()

	e := NewEngine(db, b, counters, typ, selfID, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	t.Cleanup(e.Stop)

	return &engineFixture{engine: e, bus: b, db: db, counters: counters, typing: typ}
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

func inbound(id, conv string, ts int64) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       "other",
		SenderName:     "Other",
		Body:           "hello " + id,
		CreatedAt:      time.Unix(ts, 0).UTC(),
	}
}

func attachedCache(f *engineFixture, conv string, msgs ...chat.Message) *cache.PageCache {
	c := cache.New(conv)
	c.SetInitial(chat.Page{
		Data:       msgs,
		Pagination: chat.Pagination{Page: 1, Limit: 50, Total: len(msgs), TotalPages: 1},
	})
	f.engine.Attach(c)
	return c
}

func TestPushMessageAttached(t *testing.T) {
	f := newFixture(t)
	c := attachedCache(f, "c1")

	ch, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()

	f.bus.Publish(bus.Event{Kind: bus.KindPushMessage, Payload: inbound("m1", "c1", 100)})

	evt := waitKind(t, ch, bus.KindMessageUpserted)
	meta := evt.Payload.(map[string]string)
	if meta["conversation_id"] != "c1" || meta["msg_id"] != "m1" {
		t.Errorf("unexpected upsert payload: %v", meta)
	}
	if c.Len() != 1 {
		t.Errorf("expected message in cache, got %d", c.Len())
	}
	if f.counters.Get("c1") != 1 {
		t.Errorf("expected unread count 1, got %d", f.counters.Get("c1"))
	}

	archived, err := f.db.ListMessages("c1", time.Unix(1000, 0), 10)
	if err != nil {
		t.Fatalf("failed to list archived messages: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != "m1" {
		t.Errorf("expected m1 in archive, got %v", archived)
	}
}

func TestPushMessageUnattachedCountsOnly(t *testing.T) {
	f := newFixture(t)

	ch, unsub := f.bus.Subscribe("unread.", 16)
	defer unsub()

	f.bus.Publish(bus.Event{Kind: bus.KindPushMessage, Payload: inbound("m1", "c2", 100)})

	evt := waitKind(t, ch, bus.KindUnreadChanged)
	change := evt.Payload.(UnreadChange)
	if change.ConversationID != "c2" || change.Count != 1 {
		t.Errorf("unexpected unread change: %+v", change)
	}
}

func TestOwnMessageDoesNotBumpUnread(t *testing.T) {
	f := newFixture(t)
	c := attachedCache(f, "c1")

	ch, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()

	msg := inbound("m1", "c1", 100)
	msg.SenderID = selfID
	f.bus.Publish(bus.Event{Kind: bus.KindPushMessage, Payload: msg})

	waitKind(t, ch, bus.KindMessageUpserted)
	if f.counters.Get("c1") != 0 {
		t.Errorf("own message must not bump unread, got %d", f.counters.Get("c1"))
	}
	if c.Len() != 1 {
		t.Errorf("own message still lands in cache, got %d", c.Len())
	}
}

func TestPushReactionReplacesState(t *testing.T) {
	f := newFixture(t)
	msg := inbound("m1", "c1", 100)
	c := attachedCache(f, "c1", msg)

	ch, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()

	f.bus.Publish(bus.Event{Kind: bus.KindPushReaction, Payload: chat.ReactionEvent{
		ConversationID: "c1",
		MessageID:      "m1",
		Emoji:          "👍",
		Action:         "added",
		Reactions: map[string][]chat.Reactor{
			"👍": {{ID: "other", FirstName: "Other"}},
		},
	}})
	waitKind(t, ch, bus.KindMessageUpserted)

	got := c.Flatten()
	if len(got) != 1 || len(got[0].Reactions) != 1 || got[0].Reactions[0].Emoji != "👍" {
		t.Fatalf("expected one 👍 reaction, got %+v", got)
	}

	// A second event with an empty map clears them.
	f.bus.Publish(bus.Event{Kind: bus.KindPushReaction, Payload: chat.ReactionEvent{
		ConversationID: "c1",
		MessageID:      "m1",
		Emoji:          "👍",
		Action:         "removed",
		Reactions:      map[string][]chat.Reactor{},
	}})
	waitKind(t, ch, bus.KindMessageUpserted)

	got = c.Flatten()
	if len(got[0].Reactions) != 0 {
		t.Errorf("expected reactions cleared, got %+v", got[0].Reactions)
	}
}

func TestCounterpartReadMarksOutbound(t *testing.T) {
	f := newFixture(t)
	out := inbound("m1", "c1", 100)
	out.SenderID = selfID
	c := attachedCache(f, "c1", out)
	f.counters.Set("c1", 3)

	ch, unsub := f.bus.Subscribe("unread.", 16)
	defer unsub()

	at := time.Unix(200, 0).UTC()
	f.bus.Publish(bus.Event{Kind: bus.KindPushRead, Payload: chat.ReadEvent{
		ConversationID: "c1",
		UserID:         "other",
		ReadAt:         &at,
	}})

	evt := waitKind(t, ch, bus.KindUnreadChanged)
	change := evt.Payload.(UnreadChange)
	if change.Count != 0 {
		t.Errorf("expected unread reset to 0, got %d", change.Count)
	}
	if f.counters.Get("c1") != 0 {
		t.Errorf("expected counter zeroed, got %d", f.counters.Get("c1"))
	}

	got := c.Flatten()
	if !got[0].IsRead || got[0].ReadAt == nil || !got[0].ReadAt.Equal(at) {
		t.Errorf("expected outbound message marked read at %v, got %+v", at, got[0])
	}
}

func TestOwnSessionReadIgnored(t *testing.T) {
	f := newFixture(t)
	f.counters.Set("c1", 3)

	f.bus.Publish(bus.Event{Kind: bus.KindPushRead, Payload: chat.ReadEvent{
		ConversationID: "c1",
		UserID:         selfID,
	}})

	// Typing after the read proves the read was processed (events are
	// handled in order) without touching the counter.
	ch, unsub := f.bus.Subscribe("typing.", 16)
	defer unsub()
	f.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: chat.TypingEvent{
		ConversationID: "c1", UserID: "other", IsTyping: true,
	}})
	waitKind(t, ch, bus.KindTypingChanged)

	if f.counters.Get("c1") != 3 {
		t.Errorf("own-session read must not zero counter, got %d", f.counters.Get("c1"))
	}
}

func TestTypingChanges(t *testing.T) {
	f := newFixture(t)

	ch, unsub := f.bus.Subscribe("typing.", 16)
	defer unsub()

	f.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: chat.TypingEvent{
		ConversationID: "c1", UserID: "other", IsTyping: true,
	}})
	waitKind(t, ch, bus.KindTypingChanged)

	if got := f.typing.Typing("c1"); len(got) != 1 || got[0] != "other" {
		t.Errorf("expected other typing, got %v", got)
	}

	f.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: chat.TypingEvent{
		ConversationID: "c1", UserID: "other", IsTyping: false,
	}})
	waitKind(t, ch, bus.KindTypingChanged)

	if got := f.typing.Typing("c1"); len(got) != 0 {
		t.Errorf("expected typing cleared, got %v", got)
	}
}

func TestSelfTypingIgnored(t *testing.T) {
	f := newFixture(t)

	f.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: chat.TypingEvent{
		ConversationID: "c1", UserID: selfID, IsTyping: true,
	}})

	ch, unsub := f.bus.Subscribe("typing.", 16)
	defer unsub()
	f.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: chat.TypingEvent{
		ConversationID: "c1", UserID: "other", IsTyping: true,
	}})
	waitKind(t, ch, bus.KindTypingChanged)

	if got := f.typing.Typing("c1"); len(got) != 1 || got[0] != "other" {
		t.Errorf("self typing must be ignored, got %v", got)
	}
}

func TestDisconnectClearsTyping(t *testing.T) {
	f := newFixture(t)

	ch, unsub := f.bus.Subscribe("typing.", 16)
	defer unsub()

	f.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: chat.TypingEvent{
		ConversationID: "c1", UserID: "other", IsTyping: true,
	}})
	waitKind(t, ch, bus.KindTypingChanged)

	f.bus.Publish(bus.Event{Kind: bus.KindChannelDisconnected})
	waitKind(t, ch, bus.KindTypingChanged)

	if got := f.typing.Typing("c1"); len(got) != 0 {
		t.Errorf("expected typing cleared on disconnect, got %v", got)
	}
}

func TestDetachStopsCacheMutation(t *testing.T) {
	f := newFixture(t)
	c := attachedCache(f, "c1")
	f.engine.Detach("c1")

	ch, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()

	f.bus.Publish(bus.Event{Kind: bus.KindPushMessage, Payload: inbound("m1", "c1", 100)})
	waitKind(t, ch, bus.KindMessageUpserted)

	if c.Len() != 0 {
		t.Errorf("detached cache must not receive messages, got %d", c.Len())
	}
}
