// Package sync orchestrates the flow between the backend API, the push
// channel, the in-memory cache, and the durable snapshot store. It is
// the only writer that combines those sources; the cache itself stays
// policy-free.
package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"zapdesk/internal/backend"
	"zapdesk/internal/cache"
	"zapdesk/internal/durable"
	"zapdesk/internal/registry"
	"zapdesk/internal/transport"
)

// Backend is the slice of the HTTP API the engine reads from.
type Backend interface {
	FetchChats(ctx context.Context, limit, offset int) (*backend.ChatPage, error)
	FetchMessages(ctx context.Context, chatID string, limit, offset int) (*backend.MessagePage, error)
}

// Config carries the engine's tunables.
type Config struct {
	Namespace string
	PageSize  int
	TTL       time.Duration
}

// Engine coordinates cold start, pagination, and push reconciliation.
type Engine struct {
	store    *cache.Store
	reg      *registry.Registry
	api      Backend
	db       *durable.DB
	notifier Notifier
	logger   *zap.Logger
	cfg      Config

	mu         stdsync.Mutex
	activeChat string
}

// New creates an engine. db may be nil, in which case hydration is a
// no-op and the first reads always hit the network.
func New(store *cache.Store, reg *registry.Registry, api Backend, db *durable.DB, notifier Notifier, cfg Config, logger *zap.Logger) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		store:    store,
		reg:      reg,
		api:      api,
		db:       db,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// AttachTransport registers the engine's frame handlers and wires the
// transport's connectivity signal into the registry.
func (e *Engine) AttachTransport(c *transport.Client) {
	c.On(transport.FrameNewMessage, e.handleNewMessage)
	c.On(transport.FrameMessageAck, e.handleAck)
	c.On(transport.FrameNewChat, e.handleChatListChange)
	c.On(transport.FrameChatUpdate, e.handleChatListChange)
	c.On(transport.FramePresenceUpdate, e.handlePresence)
	c.On(transport.FrameTypingIndicator, e.handleTyping)
	c.On(transport.FrameConnectionStatus, e.handleConnectionStatus)
	c.OnStatus(func(s transport.Status) {
		e.reg.Publish(registry.Status, string(s))
	})
}

// Hydrate seeds the cache from durable snapshots so the UI has data
// before the first network round trip. Expired or missing slots are
// silently skipped.
func (e *Engine) Hydrate() {
	if e.db == nil {
		return
	}
	snap, err := e.db.LoadSlot(e.cfg.Namespace, durable.SlotChats, e.cfg.TTL)
	if err != nil {
		e.logger.Warn("chat snapshot load failed", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}
	e.store.SetChats(snap.Chats, snap.Meta())

	restored := 0
	for _, chat := range snap.Chats {
		ms, err := e.db.LoadSlot(e.cfg.Namespace, durable.MessagesSlot(chat.ID), e.cfg.TTL)
		if err != nil {
			e.logger.Warn("message snapshot load failed",
				zap.String("chat", chat.ID), zap.Error(err))
			continue
		}
		if ms == nil {
			continue
		}
		e.store.SetMessages(chat.ID, ms.Messages, ms.Meta())
		restored++
	}
	e.logger.Info("cache hydrated",
		zap.Int("chats", len(snap.Chats)),
		zap.Int("messageLists", restored))
}

// EnsureChats makes the chat list available, fetching the first page
// only when no valid cached entry exists.
func (e *Engine) EnsureChats(ctx context.Context) error {
	if _, ok := e.store.ChatListMeta(); ok {
		return nil
	}
	return e.RefreshChats(ctx)
}

// RefreshChats unconditionally fetches the first page of chats and
// replaces the cached list.
func (e *Engine) RefreshChats(ctx context.Context) error {
	page, err := e.api.FetchChats(ctx, e.cfg.PageSize, 0)
	if err != nil {
		return err
	}
	e.store.SetChats(page.Chats, cache.Meta{
		LastFetch:  time.Now().UnixMilli(),
		HasMore:    page.HasMore,
		TotalCount: page.Total,
	})
	return nil
}

// LoadMoreChats fetches the next page of the chat list. A no-op when
// the cached entry says there is nothing more.
func (e *Engine) LoadMoreChats(ctx context.Context) error {
	meta, ok := e.store.ChatListMeta()
	if !ok {
		return e.EnsureChats(ctx)
	}
	if !meta.HasMore {
		return nil
	}
	offset := len(e.store.Chats())
	page, err := e.api.FetchChats(ctx, e.cfg.PageSize, offset)
	if err != nil {
		return err
	}
	e.store.AppendChats(page.Chats, page.HasMore, page.Total)
	return nil
}

// EnsureMessages makes a chat's newest message page available, fetching
// only when no valid cached entry exists.
func (e *Engine) EnsureMessages(ctx context.Context, chatID string) error {
	if _, ok := e.store.MessagesMeta(chatID); ok {
		return nil
	}
	return e.RefreshMessages(ctx, chatID)
}

// RefreshMessages unconditionally fetches a chat's newest page and
// replaces its cached messages.
func (e *Engine) RefreshMessages(ctx context.Context, chatID string) error {
	page, err := e.api.FetchMessages(ctx, chatID, e.cfg.PageSize, 0)
	if err != nil {
		return err
	}
	e.store.SetMessages(chatID, page.Messages, cache.Meta{
		LastFetch:  time.Now().UnixMilli(),
		HasMore:    page.HasMore,
		TotalCount: page.Total,
	})
	return nil
}

// LoadOlderMessages fetches the next (older) page of a chat's history.
func (e *Engine) LoadOlderMessages(ctx context.Context, chatID string) error {
	meta, ok := e.store.MessagesMeta(chatID)
	if !ok {
		return e.EnsureMessages(ctx, chatID)
	}
	if !meta.HasMore {
		return nil
	}
	msgs, _ := e.store.Messages(chatID)
	page, err := e.api.FetchMessages(ctx, chatID, e.cfg.PageSize, len(msgs))
	if err != nil {
		return err
	}
	e.store.AppendOlderMessages(chatID, page.Messages, page.HasMore, page.Total)
	return nil
}

// SetActiveChat marks the chat the operator is viewing. Its unread
// counter is cleared and inbound notifications for it are suppressed
// until another chat becomes active.
func (e *Engine) SetActiveChat(chatID string) {
	e.mu.Lock()
	e.activeChat = chatID
	e.mu.Unlock()

	if chatID == "" {
		return
	}
	zero := 0
	e.store.UpsertChat(chatID, cache.ChatPatch{UnreadCount: &zero})
}

// ActiveChat returns the currently viewed chat id, or "".
func (e *Engine) ActiveChat() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeChat
}

// InvalidateChat drops a chat's cached entry metadata and refetches it.
// Used by external events (tag assigned, chat reassigned) whose payloads
// do not carry enough detail to patch the cache in place.
func (e *Engine) InvalidateChat(ctx context.Context, chatID string) error {
	e.store.InvalidateChat(chatID)
	e.store.InvalidateChatList()
	if err := e.RefreshChats(ctx); err != nil {
		return err
	}
	return e.RefreshMessages(ctx, chatID)
}

// InvalidateChatList drops the chat list's entry metadata and refetches
// the first page.
func (e *Engine) InvalidateChatList(ctx context.Context) error {
	e.store.InvalidateChatList()
	return e.RefreshChats(ctx)
}

func (e *Engine) handleNewMessage(data json.RawMessage) {
	var im inboundMessage
	if err := json.Unmarshal(data, &im); err != nil {
		e.logger.Warn("bad new-message payload", zap.Error(err))
		return
	}
	chatID := resolveChatID(&im)
	if chatID == "" || im.ID == "" {
		e.logger.Warn("new-message payload missing identifiers")
		return
	}
	msg := im.Message
	msg.ChatID = chatID
	e.store.AppendNewMessage(chatID, msg)

	if msg.FromMe || e.ActiveChat() == chatID {
		return
	}
	e.store.BumpUnread(chatID)
	chat, _ := e.store.Chat(chatID)
	e.notifier.Notify(chat, msg)
}

func (e *Engine) handleAck(data json.RawMessage) {
	var ack inboundAck
	if err := json.Unmarshal(data, &ack); err != nil {
		e.logger.Warn("bad acknowledgment payload", zap.Error(err))
		return
	}
	msgID, chatID, status := ack.messageID(), ack.chatID(), ack.status()
	if msgID == "" || chatID == "" || status == "" {
		e.logger.Warn("acknowledgment payload missing fields",
			zap.String("message", msgID), zap.String("chat", chatID))
		return
	}
	e.store.UpdateMessageStatus(chatID, msgID, status)
}

// handleChatListChange covers new-chat and chat-update frames. Their
// payloads vary too much across producers to patch reliably, so the
// chat list is invalidated and refetched wholesale.
func (e *Engine) handleChatListChange(json.RawMessage) {
	e.store.InvalidateChatList()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.RefreshChats(ctx); err != nil {
			e.logger.Warn("chat list refresh failed", zap.Error(err))
		}
	}()
}

func (e *Engine) handlePresence(data json.RawMessage) {
	var p PresenceUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("bad presence payload", zap.Error(err))
		return
	}
	e.reg.Publish(registry.Presence, p)
}

func (e *Engine) handleTyping(data json.RawMessage) {
	var ti TypingIndicator
	if err := json.Unmarshal(data, &ti); err != nil {
		e.logger.Warn("bad typing payload", zap.Error(err))
		return
	}
	if ti.ChatID == "" {
		return
	}
	e.reg.Publish(registry.TypingKey(ti.ChatID), ti)
}

func (e *Engine) handleConnectionStatus(data json.RawMessage) {
	var cs struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &cs); err != nil || cs.Status == "" {
		e.logger.Warn("bad connection-status payload", zap.Error(err))
		return
	}
	e.reg.Publish(registry.Status, cs.Status)
}
