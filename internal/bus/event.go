package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published across the client. Kinds share dotted namespaces
// so subscribers can filter by prefix ("push.", "message.", ...).
const (
	// Inbound push events decoded from the realtime channel.
	KindPushMessage  = "push.message"
	KindPushTyping   = "push.typing"
	KindPushReaction = "push.reaction"
	KindPushRead     = "push.read"

	// Channel transport lifecycle.
	KindChannelConnected    = "channel.connected"
	KindChannelDisconnected = "channel.disconnected"

	// Reconciled state changes consumed by the UI.
	KindMessageUpserted   = "message.upserted"
	KindMessageSendFailed = "message.send_failed"
	KindMessageSendAck    = "message.send_ack"
	KindTypingChanged     = "typing.changed"
	KindUnreadChanged     = "unread.changed"

	// Session status machine transitions.
	KindStatusChanged = "session.status_changed"
)
