// Package cache holds the in-memory keyed containers for chats and
// per-chat message lists. All operations are total functions over the
// in-memory maps: no I/O ever happens here, and every mutation is a
// single synchronous call so the store is never observed half-updated.
package cache

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"zapdesk/internal/registry"
)

// Store owns all cached chat and message entities exclusively.
// Mutations notify the registry after the state change is committed.
type Store struct {
	mu       sync.Mutex
	reg      *registry.Registry
	logger   *zap.Logger
	chats    map[string]*Chat
	chatMeta *Meta
	messages map[string][]Message
	msgIDs   map[string]map[string]struct{}
	msgMeta  map[string]*Meta
}

// New creates an empty store publishing to the given registry.
func New(reg *registry.Registry, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		reg:      reg,
		logger:   logger,
		chats:    make(map[string]*Chat),
		messages: make(map[string][]Message),
		msgIDs:   make(map[string]map[string]struct{}),
		msgMeta:  make(map[string]*Meta),
	}
}

// SetChats replaces the entire chat collection, re-keyed by id, and
// records fresh entry metadata. Notifies chat-list subscribers.
func (s *Store) SetChats(chats []Chat, meta Meta) {
	s.mu.Lock()
	s.chats = make(map[string]*Chat, len(chats))
	for i := range chats {
		c := chats[i]
		s.chats[c.ID] = &c
	}
	m := meta
	s.chatMeta = &m
	snap := s.chatListLocked()
	s.mu.Unlock()

	s.reg.Publish(registry.ChatList, snap)
}

// AppendChats extends the chat list with a further page, deduplicating
// by id. HasMore and TotalCount come from the newest response.
func (s *Store) AppendChats(chats []Chat, hasMore bool, total int) {
	s.mu.Lock()
	for i := range chats {
		if _, ok := s.chats[chats[i].ID]; ok {
			continue
		}
		c := chats[i]
		s.chats[c.ID] = &c
	}
	if s.chatMeta == nil {
		s.chatMeta = &Meta{}
	}
	s.chatMeta.HasMore = hasMore
	s.chatMeta.TotalCount = total
	snap := s.chatListLocked()
	s.mu.Unlock()

	s.reg.Publish(registry.ChatList, snap)
}

// UpsertChat merges the patch into an existing chat or inserts a new
// one if absent. Notifies chat-list subscribers.
func (s *Store) UpsertChat(id string, patch ChatPatch) {
	s.mu.Lock()
	c, ok := s.chats[id]
	if !ok {
		c = &Chat{ID: id}
		s.chats[id] = c
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.UnreadCount != nil {
		c.UnreadCount = *patch.UnreadCount
	}
	if patch.Labels != nil {
		c.Labels = append([]string(nil), (*patch.Labels)...)
	}
	if patch.ContactID != nil {
		c.ContactID = *patch.ContactID
	}
	if patch.AvatarURL != nil {
		c.AvatarURL = *patch.AvatarURL
	}
	if patch.LastMessage != nil {
		lm := *patch.LastMessage
		c.LastMessage = &lm
	}
	snap := s.chatListLocked()
	s.mu.Unlock()

	s.reg.Publish(registry.ChatList, snap)
}

// BumpUnread increments a chat's unread counter by one.
func (s *Store) BumpUnread(id string) {
	s.mu.Lock()
	c, ok := s.chats[id]
	if !ok {
		c = &Chat{ID: id}
		s.chats[id] = c
	}
	c.UnreadCount++
	snap := s.chatListLocked()
	s.mu.Unlock()

	s.reg.Publish(registry.ChatList, snap)
}

// RemoveChat deletes a chat and its cached messages. Notifies chat-list
// subscribers.
func (s *Store) RemoveChat(id string) {
	s.mu.Lock()
	delete(s.chats, id)
	delete(s.messages, id)
	delete(s.msgIDs, id)
	delete(s.msgMeta, id)
	snap := s.chatListLocked()
	s.mu.Unlock()

	s.reg.Drop(registry.ChatKey(id))
	s.reg.Publish(registry.ChatList, snap)
}

// SetMessages replaces a chat's message list wholesale after a fresh
// paginated fetch. The list is stored ascending by timestamp.
func (s *Store) SetMessages(chatID string, msgs []Message, meta Meta) {
	s.mu.Lock()
	list := append([]Message(nil), msgs...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
	ids := make(map[string]struct{}, len(list))
	deduped := list[:0]
	for _, m := range list {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		deduped = append(deduped, m)
	}
	s.messages[chatID] = deduped
	s.msgIDs[chatID] = ids
	m := meta
	s.msgMeta[chatID] = &m
	snap := s.messagesLocked(chatID)
	s.mu.Unlock()

	s.reg.Publish(registry.ChatKey(chatID), snap)
}

// AppendOlderMessages prepends messages that predate the cached window
// (backward pagination), deduplicating by id. HasMore comes from the
// new response.
func (s *Store) AppendOlderMessages(chatID string, older []Message, hasMore bool, total int) {
	s.mu.Lock()
	ids, ok := s.msgIDs[chatID]
	if !ok {
		ids = make(map[string]struct{})
		s.msgIDs[chatID] = ids
	}
	var fresh []Message
	for _, m := range older {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	merged := append(fresh, s.messages[chatID]...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	s.messages[chatID] = merged
	meta, ok := s.msgMeta[chatID]
	if !ok {
		meta = &Meta{}
		s.msgMeta[chatID] = meta
	}
	meta.HasMore = hasMore
	meta.TotalCount = total
	snap := s.messagesLocked(chatID)
	s.mu.Unlock()

	s.reg.Publish(registry.ChatKey(chatID), snap)
}

// AppendNewMessage inserts a single message in timestamp order. A
// duplicate id is a no-op, which is the correctness mechanism that makes
// fetch responses and push events converge regardless of arrival order.
// The owning chat's preview is updated even when the chat has no cached
// message list yet; in that case no list is created, which keeps caches
// for never-opened chats from growing unboundedly.
func (s *Store) AppendNewMessage(chatID string, msg Message) {
	s.mu.Lock()
	list, cached := s.messages[chatID]
	if cached {
		if _, dup := s.msgIDs[chatID][msg.ID]; dup {
			s.mu.Unlock()
			return
		}
		s.msgIDs[chatID][msg.ID] = struct{}{}
		if n := len(list); n == 0 || msg.Timestamp >= list[n-1].Timestamp {
			// Fast path: the new message is the newest.
			s.messages[chatID] = append(list, msg)
		} else {
			i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp > msg.Timestamp })
			list = append(list, Message{})
			copy(list[i+1:], list[i:])
			list[i] = msg
			s.messages[chatID] = list
		}
	}

	c, ok := s.chats[chatID]
	if !ok {
		c = &Chat{ID: chatID}
		s.chats[chatID] = c
	}
	if c.LastMessage == nil || msg.Timestamp >= c.LastMessage.Timestamp {
		c.LastMessage = &LastMessage{Body: msg.Body, Timestamp: msg.Timestamp, FromMe: msg.FromMe}
	}

	var msgSnap []Message
	if cached {
		msgSnap = s.messagesLocked(chatID)
	}
	chatSnap := s.chatListLocked()
	s.mu.Unlock()

	if cached {
		s.reg.Publish(registry.ChatKey(chatID), msgSnap)
	}
	s.reg.Publish(registry.ChatList, chatSnap)
}

// UpdateMessageStatus patches the delivery-ack state of a cached message.
// Unknown chat or message ids are logged no-ops.
func (s *Store) UpdateMessageStatus(chatID, msgID, status string) {
	s.mu.Lock()
	list, ok := s.messages[chatID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("status update for uncached chat", zap.String("chat_id", chatID))
		return
	}
	found := false
	for i := range list {
		if list[i].ID == msgID {
			list[i].Status = status
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		s.logger.Debug("status update for unknown message",
			zap.String("chat_id", chatID), zap.String("msg_id", msgID))
		return
	}
	snap := s.messagesLocked(chatID)
	s.mu.Unlock()

	s.reg.Publish(registry.ChatKey(chatID), snap)
}

// InvalidateChatList deletes the chat-list entry metadata so the next
// read triggers a re-fetch. Cached data stays visible until replaced.
func (s *Store) InvalidateChatList() {
	s.mu.Lock()
	s.chatMeta = nil
	s.mu.Unlock()
}

// InvalidateChat deletes a chat's message-list entry metadata so the
// next read triggers a re-fetch.
func (s *Store) InvalidateChat(chatID string) {
	s.mu.Lock()
	delete(s.msgMeta, chatID)
	s.mu.Unlock()
}

// Chats returns the current chat list sorted by last-message timestamp
// descending. Never triggers I/O.
func (s *Store) Chats() []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatListLocked()
}

// Chat returns a copy of a single chat.
func (s *Store) Chat(id string) (Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// Messages returns a copy of a chat's cached message list, ascending by
// timestamp, and whether a list is cached at all.
func (s *Store) Messages(chatID string) ([]Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.messages[chatID]
	if !ok {
		return nil, false
	}
	return append([]Message(nil), list...), true
}

// ChatListMeta returns the chat-list entry metadata, if present.
func (s *Store) ChatListMeta() (Meta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatMeta == nil {
		return Meta{}, false
	}
	return *s.chatMeta, true
}

// MessagesMeta returns a chat's message-list entry metadata, if present.
func (s *Store) MessagesMeta(chatID string) (Meta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgMeta[chatID]
	if !ok {
		return Meta{}, false
	}
	return *m, true
}

// CachedChatIDs returns the ids of chats that currently have a cached
// message list. Used by the durable persister.
func (s *Store) CachedChatIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) chatListLocked() []Chat {
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := int64(0), int64(0)
		if out[i].LastMessage != nil {
			ti = out[i].LastMessage.Timestamp
		}
		if out[j].LastMessage != nil {
			tj = out[j].LastMessage.Timestamp
		}
		if ti != tj {
			return ti > tj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) messagesLocked(chatID string) []Message {
	return append([]Message(nil), s.messages[chatID]...)
}
