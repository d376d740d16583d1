package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ssahak93/autochat/internal/bus"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/status"
	"github.com/ssahak93/autochat/internal/tui/keys"
	"github.com/ssahak93/autochat/internal/tui/model"
	"github.com/ssahak93/autochat/internal/tui/ui"
	"github.com/ssahak93/autochat/internal/tui/views"
	"go.uber.org/zap"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	bus       *bus.Bus
	registry  *keys.Registry
	statusBar *views.StatusBar
	convList  *views.ConversationList
	thread    *views.MessageThread
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, b *bus.Bus, profileName string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		bus:       b,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(theme, vm.Unread),
		thread:    views.NewMessageThread(theme),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddView("thread", "older", &keys.Action{
		Key:         tcell.KeyPgUp,
		Description: "PgUp:history", Visible: true,
		Handler: func() { a.loadOlder() },
	})
	a.registry.AddView("thread", "bottom", &keys.Action{
		Rune: 'G', Key: tcell.KeyRune,
		Description: "G:newest", Visible: true,
		Handler: func() {
			a.thread.ScrollToEnd()
			a.observeReadState()
		},
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if conv := a.convList.Selected(); conv != nil {
			a.openConversation(*conv)
		}
	})

	a.thread.SetOnSend(func(text string) {
		if err := a.vm.Send(text); err != nil {
			a.vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
		}
		a.vm.SendTyping(false)
	})

	a.thread.SetOnType(func(isTyping bool) {
		a.vm.SendTyping(isTyping)
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("thread", a.thread, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "thread" {
			a.closeConversation()
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "thread" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.thread.Composer())
			return nil
		}

		// Scrolling up with the oldest loaded message in view pulls the
		// next history page.
		if currentPage == "thread" && (event.Key() == tcell.KeyUp || event.Key() == tcell.KeyPgUp) && a.thread.AtTop() {
			a.loadOlder()
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		// Any scroll movement can change what counts as "read".
		if currentPage == "thread" {
			defer a.observeReadState()
		}

		return event
	})
}

func (a *App) openConversation(conv chat.Conversation) {
	go func() {
		if err := a.vm.OpenConversation(a.ctx, conv); err != nil {
			a.vm.Flash.Set("Open failed: "+err.Error(), 5*time.Second)
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
			return
		}
		a.app.QueueUpdateDraw(func() {
			title := conv.Title
			if title == "" {
				title = conv.CounterpartName
			}
			a.thread.SetThreadTitle(title)
			a.renderThread()
			a.pages.SwitchToPage("thread")
			a.app.SetFocus(a.thread.Messages())

			if active := a.vm.Active(); active != nil && active.Scroll.InitialJump() {
				a.thread.ScrollToEnd()
			}
			a.observeReadState()
		})
	}()
}

func (a *App) closeConversation() {
	a.vm.CloseActive()
	a.pages.SwitchToPage("conversations")
	a.app.SetFocus(a.convList)
	a.convList.Update(a.vm.Conversations())
}

// loadOlder fetches the next history page and restores the scroll position
// so the previously visible messages stay in place.
func (a *App) loadOlder() {
	active := a.vm.Active()
	if active == nil {
		return
	}
	if !active.Scroll.ShouldLoadOlder(a.thread.AtTop(), active.Cache.InFlight(), active.Cache.HasNext()) {
		return
	}

	active.Scroll.CaptureAnchor(a.thread.ContentLines(), a.thread.ScrollRow())

	go func() {
		if err := a.vm.LoadOlder(a.ctx); err != nil {
			a.vm.Flash.Set("History failed: "+err.Error(), 5*time.Second)
		}
		a.app.QueueUpdateDraw(func() {
			height := a.renderThread()
			if offset, ok := active.Scroll.RestoreAnchor(height); ok {
				a.thread.ScrollToRow(offset)
			}
			a.statusBar.SetFlash(a.vm.Flash.Get())
		})
	}()
}

// renderThread re-renders the active thread from its cache and returns the
// content height.
func (a *App) renderThread() int {
	active := a.vm.Active()
	if active == nil {
		return 0
	}
	height := a.thread.Update(active.Cache.Flatten(), a.vm.SelfID())
	a.thread.SetTypingText(a.typingText(active.Conversation))
	return height
}

func (a *App) typingText(conv chat.Conversation) string {
	users := a.vm.TypingUsers()
	if len(users) == 0 {
		return ""
	}
	names := map[string]string{conv.CounterpartID: conv.CounterpartName}
	return views.TypingLine(users, names)
}

// observeReadState feeds the read tracker with whether unread messages are
// currently in view: unread exists and the viewer is near the bottom.
func (a *App) observeReadState() {
	active := a.vm.Active()
	if active == nil {
		return
	}
	nearBottom := active.Scroll.NearBottom(a.thread.ScrollRow(), a.thread.ContentLines(), a.thread.ViewportHeight())
	a.vm.ObserveView(nearBottom && a.vm.Unread(active.Conversation.ID) > 0)
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.eventLoop()
	go func() {
		if err := a.vm.LoadConversations(a.ctx); err != nil {
			a.vm.Flash.Set("Load failed: "+err.Error(), 5*time.Second)
		}
		a.app.QueueUpdateDraw(func() {
			a.convList.Update(a.vm.Conversations())
			a.statusBar.SetFlash(a.vm.Flash.Get())
		})
	}()

	return a.app.Run()
}

// eventLoop reacts to reconciled state changes published on the bus.
func (a *App) eventLoop() {
	msgCh, unsubMsg := a.bus.Subscribe("message.", 64)
	defer unsubMsg()
	typCh, unsubTyp := a.bus.Subscribe("typing.", 64)
	defer unsubTyp()
	unreadCh, unsubUnread := a.bus.Subscribe("unread.", 64)
	defer unsubUnread()
	statusCh, unsubStatus := a.bus.Subscribe("session.", 16)
	defer unsubStatus()

	refresh := time.NewTicker(30 * time.Second)
	defer refresh.Stop()

	for {
		select {
		case evt := <-msgCh:
			a.onMessageEvent(evt)
		case <-typCh:
			a.app.QueueUpdateDraw(func() {
				if active := a.vm.Active(); active != nil {
					a.thread.SetTypingText(a.typingText(active.Conversation))
				}
			})
		case <-unreadCh:
			a.app.QueueUpdateDraw(func() {
				if page, _ := a.pages.GetFrontPage(); page == "conversations" {
					a.convList.Update(a.vm.Conversations())
				}
			})
		case evt := <-statusCh:
			a.app.QueueUpdateDraw(func() {
				if sc, ok := evt.Payload.(status.StatusChange); ok {
					a.statusBar.SetStatus(string(sc.To))
				}
			})
		case <-refresh.C:
			go func() {
				_ = a.vm.LoadConversations(a.ctx)
				a.app.QueueUpdateDraw(func() {
					if page, _ := a.pages.GetFrontPage(); page == "conversations" {
						a.convList.Update(a.vm.Conversations())
					}
					a.statusBar.SetFlash(a.vm.Flash.Get())
				})
			}()
		case <-a.ctx.Done():
			return
		}
	}
}

// onMessageEvent re-renders the active thread after reconciliation. If the
// viewer was near the bottom the view follows the new message; otherwise
// the scroll position is preserved.
func (a *App) onMessageEvent(evt bus.Event) {
	if evt.Kind == bus.KindMessageSendFailed {
		if meta, ok := evt.Payload.(map[string]string); ok {
			a.vm.Flash.Set("Send failed: "+meta["error"], 5*time.Second)
		}
	}

	a.app.QueueUpdateDraw(func() {
		active := a.vm.Active()
		if active == nil {
			return
		}
		wasNearBottom := active.Scroll.NearBottom(a.thread.ScrollRow(), a.thread.ContentLines(), a.thread.ViewportHeight())
		a.renderThread()
		if wasNearBottom {
			a.thread.ScrollToEnd()
		}
		a.statusBar.SetFlash(a.vm.Flash.Get())
		a.observeReadState()
	})
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
