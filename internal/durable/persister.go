package durable

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"zapdesk/internal/cache"
	"zapdesk/internal/registry"
)

// Persister writes cache snapshots to the durable store after mutations.
// Saves are debounced and best-effort: a storage failure degrades to
// cold-start behavior on the next launch, it never crashes the cache.
type Persister struct {
	db        *DB
	store     *cache.Store
	reg       *registry.Registry
	namespace string
	debounce  time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
	unsub func()
}

// NewPersister creates a persister for the given user namespace.
func NewPersister(db *DB, store *cache.Store, reg *registry.Registry, namespace string, debounce time.Duration, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		db:        db,
		store:     store,
		reg:       reg,
		namespace: namespace,
		debounce:  debounce,
		logger:    logger,
	}
}

// Start subscribes to cache mutations and begins debounced persistence.
func (p *Persister) Start() {
	p.unsub = p.reg.Subscribe("", func(key string, snap any) {
		if snap == nil {
			return
		}
		if key != registry.ChatList && !strings.HasPrefix(key, "chat:") {
			return
		}
		p.schedule()
	})
}

// Stop unsubscribes, cancels any pending save, and flushes once.
func (p *Persister) Stop() {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	p.Flush()
}

func (p *Persister) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		// A save is already pending; coalesce.
		return
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		p.timer = nil
		p.mu.Unlock()
		p.Flush()
	})
}

// Flush writes the current cache contents to the durable store.
func (p *Persister) Flush() {
	if meta, ok := p.store.ChatListMeta(); ok {
		snap := &Snapshot{
			Chats:      p.store.Chats(),
			LastFetch:  meta.LastFetch,
			HasMore:    meta.HasMore,
			TotalCount: meta.TotalCount,
		}
		if err := p.db.SaveSlot(p.namespace, SlotChats, snap); err != nil {
			p.logger.Warn("persist chat list failed", zap.Error(err))
		}
	}

	for _, chatID := range p.store.CachedChatIDs() {
		meta, ok := p.store.MessagesMeta(chatID)
		if !ok {
			continue
		}
		msgs, _ := p.store.Messages(chatID)
		snap := &Snapshot{
			Messages:   msgs,
			LastFetch:  meta.LastFetch,
			HasMore:    meta.HasMore,
			TotalCount: meta.TotalCount,
		}
		if err := p.db.SaveSlot(p.namespace, MessagesSlot(chatID), snap); err != nil {
			p.logger.Warn("persist messages failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
}
