package sync

import (
	"go.uber.org/zap"

	"zapdesk/internal/cache"
)

// Notifier surfaces an inbound message to the operator. The engine only
// calls it for messages that warrant attention: from the counterparty
// and not in the currently viewed chat.
type Notifier interface {
	Notify(chat cache.Chat, msg cache.Message)
}

// LogNotifier records notifications in the daemon log. It stands in
// where no desktop notification integration is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(chat cache.Chat, msg cache.Message) {
	n.Logger.Info("new message",
		zap.String("chat", chat.ID),
		zap.String("name", chat.Name),
		zap.String("message", msg.ID))
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(cache.Chat, cache.Message) {}
