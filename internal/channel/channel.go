package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ssahak93/autochat/internal/bus"
	"github.com/ssahak93/autochat/internal/chat"
	"go.uber.org/zap"
)

// frame is the wire envelope for both directions of the realtime channel.
type frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Inbound frame types.
const (
	frameNewMessage = "message.new"
	frameTyping     = "typing"
	frameReaction   = "reaction.updated"
	frameRead       = "messages.read"
)

// Outbound frame types.
const (
	frameJoin       = "join"
	frameLeave      = "leave"
	frameTypingSend = "typing"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 25 * time.Second
)

// Channel maintains the persistent websocket connection to the backend,
// decodes push events onto the bus, and owns reconnection: on a fresh
// connection it rejoins every conversation the client is subscribed to, so
// consumers only ever register join/leave and handlers. Consumers still
// filter each inbound event by conversation id before acting.
type Channel struct {
	url    string
	token  string
	bus    *bus.Bus
	logger *zap.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	joined map[string]bool
	cancel context.CancelFunc
}

// New creates a channel client for the given websocket URL.
func New(wsURL, token string, b *bus.Bus, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:    wsURL,
		token:  token,
		bus:    b,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		joined: make(map[string]bool),
	}
}

// Start runs the connect/read/reconnect loop until ctx is cancelled.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop terminates the loop and closes the connection.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Join subscribes to a conversation's push events. The subscription
// survives reconnects until Leave is called.
func (c *Channel) Join(conversationID string) {
	c.mu.Lock()
	c.joined[conversationID] = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.write(conn, frame{Type: frameJoin, ConversationID: conversationID})
	}
}

// Leave unsubscribes from a conversation.
func (c *Channel) Leave(conversationID string) {
	c.mu.Lock()
	delete(c.joined, conversationID)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.write(conn, frame{Type: frameLeave, ConversationID: conversationID})
	}
}

// SendTyping broadcasts the viewer's typing state for a conversation.
func (c *Channel) SendTyping(conversationID string, isTyping bool) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	payload, _ := json.Marshal(map[string]bool{"isTyping": isTyping})
	c.write(conn, frame{Type: frameTypingSend, ConversationID: conversationID, Payload: payload})
}

func (c *Channel) run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("channel connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.bus.Publish(bus.Event{Kind: bus.KindChannelConnected, Timestamp: time.Now()})
		c.rejoin(conn)

		pingStop := c.keepAlive(ctx, conn)
		err = c.readLoop(ctx, conn)
		pingStop()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("channel disconnected", zap.Error(err))
		c.bus.Publish(bus.Event{Kind: bus.KindChannelDisconnected, Timestamp: time.Now()})
	}
}

func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// rejoin re-sends join frames for every subscribed conversation after a
// fresh connection is established.
func (c *Channel) rejoin(conn *websocket.Conn) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.write(conn, frame{Type: frameJoin, ConversationID: id})
	}
}

func (c *Channel) keepAlive(ctx context.Context, conn *websocket.Conn) (stop func()) {
	ticker := time.NewTicker(pingInterval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.dispatch(f)
	}
}

// dispatch decodes one inbound frame and publishes it on the bus. Malformed
// frames are logged and dropped; they never tear the connection down.
func (c *Channel) dispatch(f frame) {
	now := time.Now()
	switch f.Type {
	case frameNewMessage:
		var msg chat.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			c.logger.Warn("bad message frame", zap.Error(err))
			return
		}
		if msg.ConversationID == "" {
			msg.ConversationID = f.ConversationID
		}
		c.bus.Publish(bus.Event{Kind: bus.KindPushMessage, Timestamp: now, Payload: msg})
	case frameTyping:
		var evt chat.TypingEvent
		if err := json.Unmarshal(f.Payload, &evt); err != nil {
			c.logger.Warn("bad typing frame", zap.Error(err))
			return
		}
		if evt.ConversationID == "" {
			evt.ConversationID = f.ConversationID
		}
		c.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Timestamp: now, Payload: evt})
	case frameReaction:
		var evt chat.ReactionEvent
		if err := json.Unmarshal(f.Payload, &evt); err != nil {
			c.logger.Warn("bad reaction frame", zap.Error(err))
			return
		}
		if evt.ConversationID == "" {
			evt.ConversationID = f.ConversationID
		}
		c.bus.Publish(bus.Event{Kind: bus.KindPushReaction, Timestamp: now, Payload: evt})
	case frameRead:
		var evt chat.ReadEvent
		if err := json.Unmarshal(f.Payload, &evt); err != nil {
			c.logger.Warn("bad read frame", zap.Error(err))
			return
		}
		if evt.ConversationID == "" {
			evt.ConversationID = f.ConversationID
		}
		c.bus.Publish(bus.Event{Kind: bus.KindPushRead, Timestamp: now, Payload: evt})
	default:
		c.logger.Debug("unknown frame type", zap.String("type", f.Type))
	}
}

// write serializes one frame onto the connection. Write errors surface via
// the read loop failing, so they are only logged here.
func (c *Channel) write(conn *websocket.Conn, f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(f); err != nil {
		c.logger.Warn("channel write failed", zap.String("type", f.Type), zap.Error(err))
	}
}
