package sync

import "zapdesk/internal/cache"

// inboundMessage is the payload of a new-message push frame. Producers
// are inconsistent about where the chat identifier lives, so every
// observed spelling is captured.
type inboundMessage struct {
	cache.Message
	ChatIDSnake    string `json:"chat_id"`
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
	Chat           struct {
		ID string `json:"id"`
	} `json:"chat"`
}

// resolveChatID picks the chat identifier from an inbound message,
// trying each known field in a fixed order. Returns "" when none is set.
func resolveChatID(m *inboundMessage) string {
	for _, id := range []string{m.ChatID, m.ChatIDSnake, m.ConversationID, m.From, m.Chat.ID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// inboundAck is the payload of a message-acknowledgment frame. Status
// arrives either as a name or as a numeric ack level.
type inboundAck struct {
	MessageID    string `json:"messageId"`
	ID           string `json:"id"`
	ChatID       string `json:"chatId"`
	ChatIDSnake  string `json:"chat_id"`
	Status       string `json:"status"`
	Ack          *int   `json:"ack"`
}

func (a *inboundAck) messageID() string {
	if a.MessageID != "" {
		return a.MessageID
	}
	return a.ID
}

func (a *inboundAck) chatID() string {
	if a.ChatID != "" {
		return a.ChatID
	}
	return a.ChatIDSnake
}

// status normalizes the acknowledgment to a cache status constant.
func (a *inboundAck) status() string {
	if a.Status != "" {
		return a.Status
	}
	if a.Ack == nil {
		return ""
	}
	switch {
	case *a.Ack < 0:
		return cache.StatusFailed
	case *a.Ack == 0:
		return cache.StatusPending
	case *a.Ack == 1:
		return cache.StatusSent
	case *a.Ack == 2:
		return cache.StatusDelivered
	default:
		return cache.StatusRead
	}
}

// PresenceUpdate is the payload of a presence-update frame, republished
// to subscribers as-is.
type PresenceUpdate struct {
	ChatID   string `json:"chatId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// TypingIndicator is the payload of a typing-indicator frame.
type TypingIndicator struct {
	ChatID string `json:"chatId"`
	Typing bool   `json:"typing"`
}
