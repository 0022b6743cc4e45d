package cache

// Delivery acknowledgment states for a message.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// LastMessage is the preview of a chat's most recent message.
// Timestamp is unix milliseconds.
type LastMessage struct {
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

// Chat represents a conversation thread with a counterparty.
type Chat struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	UnreadCount int          `json:"unreadCount"`
	Labels      []string     `json:"labels,omitempty"`
	ContactID   string       `json:"contactId,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
}

// Message represents a single unit of conversation content within a chat.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId,omitempty"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
	Status    string `json:"status,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
}

// Meta is the bookkeeping attached to every cached collection.
// LastFetch is unix milliseconds, like all timestamps in this package.
type Meta struct {
	LastFetch  int64 `json:"lastFetch"`
	HasMore    bool  `json:"hasMore"`
	TotalCount int   `json:"totalCount"`
}

// ChatPatch is a partial chat update. Nil fields leave the existing
// value untouched; updates are merges, never replacements.
type ChatPatch struct {
	Name        *string
	UnreadCount *int
	Labels      *[]string
	ContactID   *string
	AvatarURL   *string
	LastMessage *LastMessage
}
