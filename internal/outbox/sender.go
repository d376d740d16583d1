package outbox

import (
	"context"
	"time"

	"github.com/ssahak93/autochat/internal/bus"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/store"
	"go.uber.org/zap"
)

// MessageSender posts a queued message to the server. The client-generated
// id doubles as the idempotency key: the server adopts it as the message id,
// so retries and the realtime echo reconcile onto the same entry.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, clientID, body string) (chat.Message, error)
}

// Reconciler folds a locally originated message into client state the same
// way an inbound push would be.
type Reconciler interface {
	ApplyLocalEcho(msg chat.Message)
}

// Sender drains the outbox and posts pending messages to the server.
type Sender struct {
	db     *store.DB
	sender MessageSender
	rec    Reconciler
	bus    *bus.Bus
	selfID string
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender MessageSender, rec Reconciler, b *bus.Bus, selfID string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		sender: sender,
		rec:    rec,
		bus:    b,
		selfID: selfID,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic echo: show the message in the UI immediately.
		s.rec.ApplyLocalEcho(chat.Message{
			ID:             entry.ClientMsgID,
			ConversationID: entry.ConversationID,
			SenderID:       s.selfID,
			Body:           entry.Body,
			CreatedAt:      time.Now().UTC(),
		})

		sent, err := s.sender.SendMessage(ctx, entry.ConversationID, entry.ClientMsgID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			s.bus.Publish(bus.Event{
				Kind:      bus.KindMessageSendFailed,
				Timestamp: time.Now(),
				Payload: map[string]string{
					"client_msg_id":   entry.ClientMsgID,
					"conversation_id": entry.ConversationID,
					"error":           err.Error(),
				},
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, sent.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		// Replace the optimistic entry with the server's authoritative
		// version (timestamps, sender fields).
		s.rec.ApplyLocalEcho(sent)

		s.logger.Info("message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", sent.ID))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageSendAck,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_msg_id":   entry.ClientMsgID,
				"server_msg_id":   sent.ID,
				"conversation_id": entry.ConversationID,
			},
		})
	}
}
