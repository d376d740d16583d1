package readstate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is the tracker's position in the Idle → Pending → Committed cycle.
type Phase string

const (
	Idle      Phase = "IDLE"      // no unread counterpart messages
	Pending   Phase = "PENDING"   // unread present, debounce running
	Committed Phase = "COMMITTED" // mark-as-read acknowledged by the backend
)

// Marker issues the mark-as-read call for a whole conversation. The backend
// treats it as idempotent; the tracker only bounds how often it is called.
type Marker interface {
	MarkRead(ctx context.Context, conversationID string) error
}

// TimerPolicy is the schedule/cancel contract the tracker drives its
// debounce with. Scheduling replaces any previously pending callback.
type TimerPolicy interface {
	Schedule(d time.Duration, fn func())
	Cancel()
}

// afterFuncTimer is the production TimerPolicy on top of time.AfterFunc.
type afterFuncTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

// NewTimer returns the default TimerPolicy.
func NewTimer() TimerPolicy {
	return &afterFuncTimer{}
}

func (a *afterFuncTimer) Schedule(d time.Duration, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
	}
	a.t = time.AfterFunc(d, fn)
}

func (a *afterFuncTimer) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}

// Options tunes the tracker. Zero values fall back to defaults.
type Options struct {
	Debounce time.Duration // dwell before committing; default 1.5s
	Cooldown time.Duration // minimum gap between successful commits; default 5s
	Timer    TimerPolicy
	Now      func() time.Time
}

const (
	defaultDebounce = 1500 * time.Millisecond
	defaultCooldown = 5 * time.Second
)

// Tracker marks a conversation's inbound messages as read after a dwell
// period, without flooding the backend under bursty traffic. It is a purely
// local optimization: the backend owns the read flag, the tracker only
// bounds call volume.
type Tracker struct {
	mu             sync.Mutex
	conversationID string
	marker         Marker
	timer          TimerPolicy
	debounce       time.Duration
	cooldown       time.Duration
	now            func() time.Time
	logger         *zap.Logger

	phase      Phase
	lastCommit time.Time
	stopped    bool
}

// NewTracker creates a tracker for one conversation.
func NewTracker(conversationID string, marker Marker, logger *zap.Logger, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}
	if opts.Timer == nil {
		opts.Timer = NewTimer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		conversationID: conversationID,
		marker:         marker,
		timer:          opts.Timer,
		debounce:       opts.Debounce,
		cooldown:       opts.Cooldown,
		now:            opts.Now,
		logger:         logger,
		phase:          Idle,
	}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Observe feeds the tracker the current "unread counterpart messages exist"
// predicate. Every qualifying change restarts the debounce; the scheduled
// commit also honors the cooldown since the last successful call.
func (t *Tracker) Observe(hasUnread bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	if !hasUnread {
		if t.phase == Pending {
			t.timer.Cancel()
		}
		t.phase = Idle
		return
	}

	t.phase = Pending
	t.timer.Schedule(t.commitDelayLocked(), t.commit)
}

// commitDelayLocked computes the debounce extended to respect the cooldown.
func (t *Tracker) commitDelayLocked() time.Duration {
	delay := t.debounce
	if !t.lastCommit.IsZero() {
		if earliest := t.lastCommit.Add(t.cooldown).Sub(t.now()); earliest > delay {
			delay = earliest
		}
	}
	return delay
}

func (t *Tracker) commit() {
	t.mu.Lock()
	if t.stopped || t.phase != Pending {
		t.mu.Unlock()
		return
	}
	convID := t.conversationID
	t.mu.Unlock()

	// The call happens outside the lock; only the outcome transitions state.
	err := t.marker.MarkRead(context.Background(), convID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if err != nil {
		// Best-effort: stay Pending without a timer, the next qualifying
		// Observe retries. Never surfaced to the user.
		t.logger.Debug("mark-as-read failed, will retry",
			zap.String("conversation", convID), zap.Error(err))
		return
	}
	t.lastCommit = t.now()
	t.phase = Committed
}

// Stop cancels any pending commit. Called when the conversation view closes
// so no stale mark-as-read fires against a torn-down view.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Cancel()
	t.phase = Idle
}
