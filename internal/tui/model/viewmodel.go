package model

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ssahak93/autochat/internal/cache"
	"github.com/ssahak93/autochat/internal/channel"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/readstate"
	"github.com/ssahak93/autochat/internal/rest"
	"github.com/ssahak93/autochat/internal/scroll"
	"github.com/ssahak93/autochat/internal/store"
	syncpkg "github.com/ssahak93/autochat/internal/sync"
	"github.com/ssahak93/autochat/internal/typing"
	"go.uber.org/zap"
)

// Options carries the view-level tunables from config.
type Options struct {
	PageSize       int
	ReadDebounce   time.Duration
	ReadCooldown   time.Duration
	NearBottomRows int
}

// ActiveConversation bundles the per-view state that exists only while a
// conversation is open: its page cache, read tracker and scroll controller.
type ActiveConversation struct {
	Conversation chat.Conversation
	Cache        *cache.PageCache
	Tracker      *readstate.Tracker
	Scroll       *scroll.Controller
}

// ViewModel owns client state consumed by the TUI and orchestrates the
// open/close lifecycle of a conversation view.
type ViewModel struct {
	mu sync.RWMutex

	rest     *rest.Client
	engine   *syncpkg.Engine
	channel  *channel.Channel
	db       *store.DB
	counters *cache.Counters
	typing   *typing.Set
	selfID   string
	opts     Options
	logger   *zap.Logger

	conversations []chat.Conversation
	active        *ActiveConversation
	Flash         Flash
}

// NewViewModel creates a view model wired to the client's services.
func NewViewModel(rc *rest.Client, engine *syncpkg.Engine, ch *channel.Channel, db *store.DB, counters *cache.Counters, typ *typing.Set, selfID string, opts Options, logger *zap.Logger) *ViewModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewModel{
		rest:     rc,
		engine:   engine,
		channel:  ch,
		db:       db,
		counters: counters,
		typing:   typ,
		selfID:   selfID,
		opts:     opts,
		logger:   logger,
	}
}

// LoadConversations fetches the conversation list, seeds the unread
// counters from the server and mirrors the list into the archive.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.rest.ListConversations(ctx)
	if err != nil {
		return err
	}
	for i := range convs {
		vm.counters.Set(convs[i].ID, convs[i].UnreadCount)
		if err := vm.db.UpsertConversation(&convs[i]); err != nil {
			vm.logger.Warn("failed to archive conversation", zap.Error(err), zap.String("conversation", convs[i].ID))
		}
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return nil
}

// OpenConversation mounts a conversation view: fetches the newest page,
// attaches the cache to the reconciliation engine, joins the realtime room
// and starts the read tracker. Any previously open conversation is closed
// first.
func (vm *ViewModel) OpenConversation(ctx context.Context, conv chat.Conversation) error {
	vm.CloseActive()

	c := cache.New(conv.ID)
	page, err := vm.rest.ListMessages(ctx, conv.ID, 1, vm.opts.PageSize)
	if err != nil {
		return err
	}
	c.SetInitial(page)

	// Attach before joining so no push event can slip between the two.
	vm.engine.Attach(c)
	vm.channel.Join(conv.ID)

	tracker := readstate.NewTracker(conv.ID, vm.marker(), vm.logger, readstate.Options{
		Debounce: vm.opts.ReadDebounce,
		Cooldown: vm.opts.ReadCooldown,
	})
	sc := scroll.NewController(vm.opts.NearBottomRows)

	vm.mu.Lock()
	vm.active = &ActiveConversation{
		Conversation: conv,
		Cache:        c,
		Tracker:      tracker,
		Scroll:       sc,
	}
	vm.mu.Unlock()

	go vm.archivePage(conv.ID, page)
	return nil
}

// CloseActive unmounts the current conversation view, if any: leaves the
// room, detaches the cache and stops the read tracker. The cache is
// discarded, not persisted.
func (vm *ViewModel) CloseActive() {
	vm.mu.Lock()
	active := vm.active
	vm.active = nil
	vm.mu.Unlock()

	if active == nil {
		return
	}
	vm.channel.Leave(active.Conversation.ID)
	vm.engine.Detach(active.Conversation.ID)
	active.Tracker.Stop()
	vm.channel.SendTyping(active.Conversation.ID, false)
}

// LoadOlder fetches the next older history page for the active
// conversation. At most one fetch runs at a time; concurrent calls are
// no-ops.
func (vm *ViewModel) LoadOlder(ctx context.Context) error {
	active := vm.Active()
	if active == nil || !active.Cache.HasNext() {
		return nil
	}
	if !active.Cache.BeginFetch() {
		return nil
	}
	defer active.Cache.EndFetch()

	page, err := vm.rest.ListMessages(ctx, active.Conversation.ID, active.Cache.NextPage(), vm.opts.PageSize)
	if err != nil {
		return err
	}
	active.Cache.AddOlderPage(page)
	go vm.archivePage(active.Conversation.ID, page)
	return nil
}

// Send queues a message for the active conversation. Delivery happens
// asynchronously through the outbox.
func (vm *ViewModel) Send(body string) error {
	active := vm.Active()
	if active == nil {
		return nil
	}
	return vm.db.QueueOutbox(uuid.New().String(), active.Conversation.ID, body)
}

// React posts a reaction to a message; the resulting state lands via the
// realtime reaction event.
func (vm *ViewModel) React(ctx context.Context, messageID, emoji string) error {
	return vm.rest.React(ctx, messageID, emoji)
}

// SendTyping forwards the viewer's typing state for the active conversation.
func (vm *ViewModel) SendTyping(isTyping bool) {
	if active := vm.Active(); active != nil {
		vm.channel.SendTyping(active.Conversation.ID, isTyping)
	}
}

// ObserveView feeds the read tracker: called on every render of the active
// thread with whether unread inbound messages are currently in view.
func (vm *ViewModel) ObserveView(hasUnread bool) {
	if active := vm.Active(); active != nil {
		active.Tracker.Observe(hasUnread)
	}
}

// TypingUsers returns who is typing in the active conversation.
func (vm *ViewModel) TypingUsers() []string {
	active := vm.Active()
	if active == nil {
		return nil
	}
	return vm.typing.Typing(active.Conversation.ID)
}

// Unread returns the unread counter for a conversation.
func (vm *ViewModel) Unread(conversationID string) int {
	return vm.counters.Get(conversationID)
}

// Active returns the currently open conversation state, or nil.
func (vm *ViewModel) Active() *ActiveConversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []chat.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// SelfID returns the viewer's user id.
func (vm *ViewModel) SelfID() string {
	return vm.selfID
}

// SearchArchive queries the local full-text index.
func (vm *ViewModel) SearchArchive(query string) ([]store.SearchResult, error) {
	return vm.db.SearchMessages(query, "", 50)
}

func (vm *ViewModel) archivePage(conversationID string, page chat.Page) {
	if err := vm.db.ArchiveBatch(page.Data); err != nil {
		vm.logger.Warn("failed to archive page", zap.Error(err), zap.String("conversation", conversationID))
	}
}

// marker adapts the REST mark-read call for the tracker: a successful
// commit also zeroes the local counter.
func (vm *ViewModel) marker() readstate.Marker {
	return markerFunc(func(ctx context.Context, conversationID string) error {
		if err := vm.rest.MarkRead(ctx, conversationID); err != nil {
			return err
		}
		vm.counters.Zero(conversationID)
		return nil
	})
}

type markerFunc func(ctx context.Context, conversationID string) error

func (f markerFunc) MarkRead(ctx context.Context, conversationID string) error {
	return f(ctx, conversationID)
}
