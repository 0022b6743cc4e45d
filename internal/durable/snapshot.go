// Package durable persists serialized cache snapshots to a per-user
// namespaced SQLite slot with a time-to-live. It is used only at startup
// (hydration) and after mutations (debounced persistence), never as the
// primary read path, and it never holds live references into the cache.
package durable

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"zapdesk/internal/cache"
)

// SlotChats is the slot name for the chat-list snapshot.
const SlotChats = "chats"

// MessagesSlot returns the slot name for one chat's message snapshot.
func MessagesSlot(chatID string) string {
	return "messages:" + chatID
}

// Snapshot is a serialized cached collection plus its entry metadata.
type Snapshot struct {
	Chats      []cache.Chat    `json:"chats,omitempty"`
	Messages   []cache.Message `json:"messages,omitempty"`
	LastFetch  int64           `json:"lastFetch"`
	HasMore    bool            `json:"hasMore"`
	TotalCount int             `json:"totalCount"`
}

// Meta returns the snapshot's entry metadata in cache form.
func (s *Snapshot) Meta() cache.Meta {
	return cache.Meta{LastFetch: s.LastFetch, HasMore: s.HasMore, TotalCount: s.TotalCount}
}

// SaveSlot upserts a snapshot under (namespace, slot). Concurrent writers
// to the same slot are last-writer-wins.
func (db *DB) SaveSlot(namespace, slot string, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO cache_slots (namespace, slot, payload, last_fetch, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, slot) DO UPDATE SET
			payload = excluded.payload,
			last_fetch = excluded.last_fetch,
			updated_at = excluded.updated_at`,
		namespace, slot, string(payload), snap.LastFetch, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

// LoadSlot returns the snapshot stored under (namespace, slot), or nil if
// none exists. A snapshot whose lastFetch is older than ttl is expired:
// it is deleted and nil is returned, never a stale value. A payload that
// no longer deserializes is treated the same way.
func (db *DB) LoadSlot(namespace, slot string, ttl time.Duration) (*Snapshot, error) {
	var payload string
	var lastFetch int64
	err := db.QueryRow(`
		SELECT payload, last_fetch FROM cache_slots
		WHERE namespace = ? AND slot = ?`, namespace, slot).
		Scan(&payload, &lastFetch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}

	if time.Now().UnixMilli()-lastFetch > ttl.Milliseconds() {
		_, _ = db.Exec(`DELETE FROM cache_slots WHERE namespace = ? AND slot = ?`, namespace, slot)
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		_, _ = db.Exec(`DELETE FROM cache_slots WHERE namespace = ? AND slot = ?`, namespace, slot)
		return nil, nil
	}
	return &snap, nil
}

// ClearNamespace deletes every slot belonging to a namespace.
func (db *DB) ClearNamespace(namespace string) error {
	_, err := db.Exec(`DELETE FROM cache_slots WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	return nil
}
