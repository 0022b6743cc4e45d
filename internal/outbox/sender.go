// Package outbox queues outbound messages, inserts them into the cache
// optimistically, and reconciles their status once the backend accepts
// or rejects them.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zapdesk/internal/backend"
	"zapdesk/internal/cache"
)

// MessageSender is the slice of the HTTP API the outbox writes to.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID string, req *backend.SendRequest) (*backend.SendResponse, error)
}

// ErrQueueFull is returned by Enqueue when the outbox cannot accept
// more messages.
var ErrQueueFull = errors.New("outbox: queue full")

type entry struct {
	chatID   string
	clientID string
	body     string
}

// Sender drains the outbox and posts messages to the backend.
type Sender struct {
	store  *cache.Store
	api    MessageSender
	logger *zap.Logger
	queue  chan entry
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(store *cache.Store, api MessageSender, logger *zap.Logger) *Sender {
	return &Sender{
		store:  store,
		api:    api,
		logger: logger,
		queue:  make(chan entry, 256),
	}
}

// Enqueue adds a message to the outbox and inserts it into the cache as
// pending so the UI shows it immediately. The returned id is the
// client-generated message id; the push confirmation carries the same id
// and deduplicates against the optimistic entry.
func (s *Sender) Enqueue(chatID, body string) (string, error) {
	clientID := uuid.NewString()
	s.store.AppendNewMessage(chatID, cache.Message{
		ID:        clientID,
		ChatID:    chatID,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
		FromMe:    true,
		Status:    cache.StatusPending,
	})

	select {
	case s.queue <- entry{chatID: chatID, clientID: clientID, body: body}:
	default:
		s.store.UpdateMessageStatus(chatID, clientID, cache.StatusFailed)
		return clientID, ErrQueueFull
	}
	return clientID, nil
}

// Start begins draining the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit. Queued messages
// stay pending; they are not dropped from the cache.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case e := <-s.queue:
			s.process(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) process(ctx context.Context, e entry) {
	_, err := s.api.SendMessage(ctx, e.chatID, &backend.SendRequest{ID: e.clientID, Body: e.body})
	if err != nil {
		s.logger.Error("failed to send message",
			zap.Error(err),
			zap.String("chat", e.chatID),
			zap.String("client_msg_id", e.clientID))
		s.store.UpdateMessageStatus(e.chatID, e.clientID, cache.StatusFailed)
		return
	}
	s.store.UpdateMessageStatus(e.chatID, e.clientID, cache.StatusSent)
}
