package cache

import (
	"testing"

	"zapdesk/internal/registry"
)

func testStore() (*Store, *registry.Registry) {
	reg := registry.New()
	return New(reg, nil), reg
}

func TestSetChatsReplaces(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{{ID: "c1"}, {ID: "c2"}}, Meta{LastFetch: 100, HasMore: true, TotalCount: 9})
	s.SetChats([]Chat{{ID: "c3"}}, Meta{LastFetch: 200})

	chats := s.Chats()
	if len(chats) != 1 || chats[0].ID != "c3" {
		t.Fatalf("Chats() = %v, want only c3", chats)
	}
	meta, ok := s.ChatListMeta()
	if !ok || meta.LastFetch != 200 {
		t.Errorf("ChatListMeta() = %v %v, want lastFetch=200", meta, ok)
	}
}

func TestUpsertChatMerges(t *testing.T) {
	s, _ := testStore()
	name := "Maria"
	s.UpsertChat("c1", ChatPatch{Name: &name})

	unread := 3
	s.UpsertChat("c1", ChatPatch{UnreadCount: &unread})

	c, ok := s.Chat("c1")
	if !ok {
		t.Fatal("chat not found")
	}
	if c.Name != "Maria" {
		t.Errorf("Name = %q, want Maria (merge must not drop omitted fields)", c.Name)
	}
	if c.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", c.UnreadCount)
	}
}

func TestAppendChatsDedupsAndTakesNewMeta(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{{ID: "c1"}, {ID: "c2"}}, Meta{HasMore: true, TotalCount: 4})
	s.AppendChats([]Chat{{ID: "c2"}, {ID: "c3"}}, false, 3)

	if got := len(s.Chats()); got != 3 {
		t.Errorf("len(Chats()) = %d, want 3 (c2 deduped)", got)
	}
	meta, _ := s.ChatListMeta()
	if meta.HasMore {
		t.Error("HasMore = true, want hasMore from newest response (false)")
	}
	if meta.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", meta.TotalCount)
	}
}

func TestAppendNewMessageIdempotent(t *testing.T) {
	s, _ := testStore()
	s.SetMessages("c1", nil, Meta{})

	m := Message{ID: "m1", Body: "hi", Timestamp: 1000}
	s.AppendNewMessage("c1", m)
	s.AppendNewMessage("c1", m)

	msgs, _ := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1 (duplicate id is a no-op)", len(msgs))
	}
}

func TestAppendNewMessageOrderInvariant(t *testing.T) {
	s, _ := testStore()
	s.SetMessages("c1", nil, Meta{})

	s.AppendNewMessage("c1", Message{ID: "m3", Timestamp: 3000})
	s.AppendNewMessage("c1", Message{ID: "m1", Timestamp: 1000})
	s.AppendNewMessage("c1", Message{ID: "m4", Timestamp: 4000})
	s.AppendNewMessage("c1", Message{ID: "m2", Timestamp: 2000})
	s.AppendOlderMessages("c1", []Message{{ID: "m0", Timestamp: 500}}, false, 5)

	msgs, _ := s.Messages("c1")
	if len(msgs) != 5 {
		t.Fatalf("len(messages) = %d, want 5", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Timestamp > msgs[i].Timestamp {
			t.Fatalf("messages out of order at %d: %v", i, msgs)
		}
	}
}

func TestAppendNewMessageWithoutCachedList(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{{ID: "c1", Name: "Lead"}}, Meta{})

	s.AppendNewMessage("c1", Message{ID: "m1", Body: "hi", Timestamp: 1000})

	// Preview must be updated even though no list is cached.
	c, _ := s.Chat("c1")
	if c.LastMessage == nil || c.LastMessage.Body != "hi" {
		t.Fatalf("LastMessage = %v, want body=hi", c.LastMessage)
	}
	// No message-list cache may be created for a never-opened chat.
	if _, cached := s.Messages("c1"); cached {
		t.Error("message list was created for a chat that was never opened")
	}
}

func TestAppendNewMessagePreviewNotRegressed(t *testing.T) {
	s, _ := testStore()
	s.SetMessages("c1", nil, Meta{})
	s.AppendNewMessage("c1", Message{ID: "m2", Body: "newer", Timestamp: 2000})
	s.AppendNewMessage("c1", Message{ID: "m1", Body: "older", Timestamp: 1000})

	c, _ := s.Chat("c1")
	if c.LastMessage.Body != "newer" {
		t.Errorf("LastMessage.Body = %q, want newer (out-of-order arrival must not regress preview)", c.LastMessage.Body)
	}
}

func TestAppendNewMessageNotifiesBothKeys(t *testing.T) {
	s, reg := testStore()
	s.SetMessages("c1", nil, Meta{})

	chatNotified, msgNotified := 0, 0
	defer reg.Subscribe(registry.ChatList, func(_ string, snap any) {
		if snap != nil {
			chatNotified++
		}
	})()
	defer reg.Subscribe(registry.ChatKey("c1"), func(_ string, snap any) {
		if snap != nil {
			msgNotified++
		}
	})()
	chatNotified, msgNotified = 0, 0 // ignore replay

	s.AppendNewMessage("c1", Message{ID: "m1", Timestamp: 1})
	if chatNotified != 1 || msgNotified != 1 {
		t.Errorf("notifications chat=%d msg=%d, want 1 each", chatNotified, msgNotified)
	}
}

func TestSetMessagesDedups(t *testing.T) {
	s, _ := testStore()
	s.SetMessages("c1", []Message{
		{ID: "m1", Timestamp: 2},
		{ID: "m1", Timestamp: 2},
		{ID: "m0", Timestamp: 1},
	}, Meta{HasMore: false})

	msgs, _ := s.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "m0" {
		t.Errorf("first = %s, want m0 (ascending order)", msgs[0].ID)
	}
}

func TestFetchThenPushDedup(t *testing.T) {
	s, _ := testStore()
	// Fetch response lands first.
	s.SetMessages("c1", []Message{{ID: "m1", Body: "hi", Timestamp: 1000}}, Meta{HasMore: false})
	// The same message arrives again via push.
	s.AppendNewMessage("c1", Message{ID: "m1", Body: "hi", Timestamp: 1000})

	msgs, _ := s.Messages("c1")
	if len(msgs) != 1 {
		t.Errorf("len = %d, want exactly one m1", len(msgs))
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	s, _ := testStore()
	s.SetMessages("c1", []Message{{ID: "m1", Timestamp: 1, Status: StatusPending}}, Meta{})

	s.UpdateMessageStatus("c1", "m1", StatusRead)
	msgs, _ := s.Messages("c1")
	if msgs[0].Status != StatusRead {
		t.Errorf("Status = %q, want read", msgs[0].Status)
	}

	// Unknown ids are logged no-ops, not panics.
	s.UpdateMessageStatus("c1", "nope", StatusRead)
	s.UpdateMessageStatus("nope", "m1", StatusRead)
}

func TestInvalidate(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{{ID: "c1"}}, Meta{LastFetch: 100})
	s.SetMessages("c1", []Message{{ID: "m1", Timestamp: 1}}, Meta{LastFetch: 100})

	s.InvalidateChatList()
	if _, ok := s.ChatListMeta(); ok {
		t.Error("chat-list meta survived invalidation")
	}
	// Data stays visible until the next fetch replaces it.
	if len(s.Chats()) != 1 {
		t.Error("chat data should remain until refetched")
	}

	s.InvalidateChat("c1")
	if _, ok := s.MessagesMeta("c1"); ok {
		t.Error("message meta survived invalidation")
	}
}

func TestRemoveChat(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{{ID: "c1"}, {ID: "c2"}}, Meta{})
	s.SetMessages("c1", []Message{{ID: "m1", Timestamp: 1}}, Meta{})

	s.RemoveChat("c1")
	if _, ok := s.Chat("c1"); ok {
		t.Error("chat still present after RemoveChat")
	}
	if _, cached := s.Messages("c1"); cached {
		t.Error("messages still cached after RemoveChat")
	}
}

func TestChatsSortedByRecency(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{
		{ID: "old", LastMessage: &LastMessage{Timestamp: 100}},
		{ID: "new", LastMessage: &LastMessage{Timestamp: 300}},
		{ID: "mid", LastMessage: &LastMessage{Timestamp: 200}},
	}, Meta{})

	chats := s.Chats()
	if chats[0].ID != "new" || chats[1].ID != "mid" || chats[2].ID != "old" {
		t.Errorf("order = %v, want newest first", []string{chats[0].ID, chats[1].ID, chats[2].ID})
	}
}

func TestBumpUnread(t *testing.T) {
	s, _ := testStore()
	s.SetChats([]Chat{{ID: "c1", UnreadCount: 1}}, Meta{})
	s.BumpUnread("c1")
	c, _ := s.Chat("c1")
	if c.UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2", c.UnreadCount)
	}
}
