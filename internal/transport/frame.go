package transport

import "encoding/json"

// Recognized inbound frame types. Anything else is logged and dropped.
const (
	FrameConnectionStatus = "connection-status"
	FrameNewMessage       = "new-message"
	FrameMessageAck       = "message-acknowledgment"
	FrameNewChat          = "new-chat"
	FrameChatUpdate       = "chat-update"
	FramePresenceUpdate   = "presence-update"
	FrameTypingIndicator  = "typing-indicator"
)

// Frame is the wire envelope for all push-channel events.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
