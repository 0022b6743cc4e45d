// Package registry is an in-process fan-out letting many independent
// consumers observe cached collections without polling. Subscribers are
// keyed by namespace prefix and replayed the last published snapshot for
// their key synchronously on subscribe, so a freshly mounted consumer
// never renders a blank state while waiting for the next mutation.
package registry

import (
	"strings"
	"sync"
)

// Well-known keys.
const (
	ChatList = "chats"
	Status   = "status"
	Presence = "presence"
)

// ChatKey returns the subscription key for a single chat's message list.
func ChatKey(chatID string) string {
	return "chat:" + chatID
}

// TypingKey returns the subscription key for a chat's typing indicator.
func TypingKey(chatID string) string {
	return "typing:" + chatID
}

// Callback receives the key that changed and its current snapshot.
// The snapshot is nil when nothing has been published for the key yet.
type Callback func(key string, snapshot any)

type subscription struct {
	id     int
	prefix string
	fn     Callback
}

// matches reports whether a published key reaches this subscriber. A
// prefix acts as a wildcard only when it is empty or ends at a key
// namespace delimiter; otherwise it must equal the key exactly, so
// "chat:c1" never receives "chat:c10".
func (s *subscription) matches(key string) bool {
	if s.prefix == key {
		return true
	}
	if s.prefix == "" || strings.HasSuffix(s.prefix, ":") {
		return strings.HasPrefix(key, s.prefix)
	}
	return false
}

// Registry is a keyed publish/subscribe registry with last-value replay.
type Registry struct {
	mu   sync.Mutex
	subs []*subscription
	last map[string]any
	next int
}

// New creates a new registry.
func New() *Registry {
	return &Registry{
		last: make(map[string]any),
	}
}

// Subscribe registers fn for the given key, or for a whole namespace
// when prefix is empty or ends in ":", and synchronously replays the
// last snapshot published under exactly that prefix (nil if none).
// Returns an unsubscribe function. Notifications for a key are
// delivered in registration order.
func (r *Registry) Subscribe(prefix string, fn Callback) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	r.subs = append(r.subs, &subscription{id: id, prefix: prefix, fn: fn})
	snap := r.last[prefix]
	r.mu.Unlock()

	fn(prefix, snap)

	return func() {
		r.mu.Lock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
}

// Publish records snapshot as the last value for key and invokes every
// subscriber whose prefix matches, synchronously, in registration order.
// The subscriber set is snapshotted before iterating so unsubscribing
// during a notification pass does not affect the current pass.
func (r *Registry) Publish(key string, snapshot any) {
	r.mu.Lock()
	r.last[key] = snapshot
	matched := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if s.matches(key) {
			matched = append(matched, s)
		}
	}
	r.mu.Unlock()

	for _, s := range matched {
		s.fn(key, snapshot)
	}
}

// Drop forgets the last value for key, so future subscribers replay nil
// until the next Publish. Used when a cache entry is invalidated.
func (r *Registry) Drop(key string) {
	r.mu.Lock()
	delete(r.last, key)
	r.mu.Unlock()
}
