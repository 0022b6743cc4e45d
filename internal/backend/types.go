package backend

import "zapdesk/internal/cache"

// ChatPage is one page of the chat list.
type ChatPage struct {
	Chats   []cache.Chat `json:"chats"`
	HasMore bool         `json:"hasMore"`
	Total   int          `json:"total"`
}

// MessagePage is one page of a chat's messages.
type MessagePage struct {
	Messages []cache.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
	Total    int             `json:"total"`
}

// SendRequest is an outbound message. ID is client-generated so the
// eventual push confirmation deduplicates against the optimistic entry.
type SendRequest struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// SendResponse acknowledges that a message was enqueued for delivery.
type SendResponse struct {
	ID       string `json:"id"`
	Enqueued bool   `json:"enqueued"`
}
