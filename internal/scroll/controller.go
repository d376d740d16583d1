package scroll

import "sync"

// Controller keeps the viewport stable across the three append/prepend
// scenarios of a message thread: the initial jump to the newest message,
// older pages prepending above the current view, and new messages arriving
// at the bottom. It works in abstract rows (the terminal view scrolls by
// lines); the view binds it to its own scroll offset.
type Controller struct {
	mu sync.Mutex

	// nearBottom is the distance-from-bottom threshold, in rows, under
	// which a new message auto-scrolls the view. Density-dependent and
	// deliberately tunable, not load-bearing.
	nearBottom int

	initialDone    bool
	anchored       bool
	anchorDistance int
}

const defaultNearBottomRows = 6

// NewController creates a controller. nearBottomRows <= 0 uses the default.
func NewController(nearBottomRows int) *Controller {
	if nearBottomRows <= 0 {
		nearBottomRows = defaultNearBottomRows
	}
	return &Controller{nearBottom: nearBottomRows}
}

// InitialJump reports whether the view should jump to the bottom now. It
// returns true exactly once per conversation attach, when the first page
// has resolved.
func (c *Controller) InitialJump() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialDone {
		return false
	}
	c.initialDone = true
	return true
}

// Reset prepares the controller for a newly attached conversation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialDone = false
	c.anchored = false
	c.anchorDistance = 0
}

// CaptureAnchor records the distance from the bottom of the content to the
// current scroll offset, taken just before an older page is requested.
func (c *Controller) CaptureAnchor(contentHeight, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchored = true
	c.anchorDistance = contentHeight - offset
}

// RestoreAnchor returns the offset that keeps the previously visible row
// anchored after the new page rendered: newHeight minus the captured
// distance, exactly. ok is false when no anchor was captured.
func (c *Controller) RestoreAnchor(newContentHeight int) (offset int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.anchored {
		return 0, false
	}
	c.anchored = false
	offset = newContentHeight - c.anchorDistance
	if offset < 0 {
		offset = 0
	}
	return offset, true
}

// NearBottom reports whether the viewport is close enough to the bottom
// that a new message should auto-scroll. Otherwise the reader is in history
// and must not be interrupted.
func (c *Controller) NearBottom(offset, contentHeight, viewportHeight int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	distance := contentHeight - (offset + viewportHeight)
	return distance <= c.nearBottom
}

// ShouldLoadOlder gates backward pagination: the top sentinel must be
// visible, no fetch may be in flight, and an older page must exist.
func (c *Controller) ShouldLoadOlder(sentinelVisible, inFlight, hasNext bool) bool {
	return sentinelVisible && !inFlight && hasNext
}
