package registry

import (
	"testing"
)

func TestReplayOnSubscribe(t *testing.T) {
	r := New()
	r.Publish(ChatList, []string{"c1", "c2"})

	var replayed any
	calls := 0
	unsub := r.Subscribe(ChatList, func(_ string, snap any) {
		replayed = snap
		calls++
	})
	defer unsub()

	if calls != 1 {
		t.Fatalf("callback called %d times on subscribe, want 1", calls)
	}
	chats, ok := replayed.([]string)
	if !ok || len(chats) != 2 {
		t.Errorf("replayed snapshot = %v, want [c1 c2]", replayed)
	}
}

func TestReplayEmpty(t *testing.T) {
	r := New()

	calls := 0
	var got any = "sentinel"
	unsub := r.Subscribe("chat:c9", func(_ string, snap any) {
		calls++
		got = snap
	})
	defer unsub()

	if calls != 1 {
		t.Fatalf("callback called %d times, want 1 (replay even if empty)", calls)
	}
	if got != nil {
		t.Errorf("replayed snapshot = %v, want nil", got)
	}
}

func TestNotifyInRegistrationOrder(t *testing.T) {
	r := New()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		defer r.Subscribe(ChatList, func(_ string, snap any) {
			if snap != nil {
				order = append(order, i)
			}
		})()
	}

	r.Publish(ChatList, "data")

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("notification order = %v, want [1 2 3]", order)
	}
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	calls := 0
	unsub := r.Subscribe(ChatList, func(_ string, snap any) {
		if snap != nil {
			calls++
		}
	})

	r.Publish(ChatList, "a")
	unsub()
	r.Publish(ChatList, "b")

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no delivery after unsubscribe)", calls)
	}
}

func TestUnsubscribeDuringNotify(t *testing.T) {
	r := New()
	var unsub2 func()
	got2 := 0

	r.Subscribe(ChatList, func(_ string, snap any) {
		if snap != nil && unsub2 != nil {
			unsub2()
		}
	})
	unsub2 = r.Subscribe(ChatList, func(_ string, snap any) {
		if snap != nil {
			got2++
		}
	})

	// First subscriber unsubscribes the second mid-pass; the current pass
	// still delivers to the snapshotted set.
	r.Publish(ChatList, "x")
	if got2 != 1 {
		t.Errorf("second subscriber got %d notifications in first pass, want 1", got2)
	}

	r.Publish(ChatList, "y")
	if got2 != 1 {
		t.Errorf("second subscriber got %d total, want 1 (unsubscribed)", got2)
	}
}

func TestPrefixMatching(t *testing.T) {
	r := New()
	var keys []string
	defer r.Subscribe("chat:", func(key string, snap any) {
		if snap != nil {
			keys = append(keys, key)
		}
	})()

	r.Publish(ChatKey("c1"), "m")
	r.Publish(ChatList, "ignored")
	r.Publish(ChatKey("c2"), "m")

	if len(keys) != 2 || keys[0] != "chat:c1" || keys[1] != "chat:c2" {
		t.Errorf("matched keys = %v, want [chat:c1 chat:c2]", keys)
	}
}

func TestChatKeysDoNotCollide(t *testing.T) {
	r := New()
	var keys []string
	defer r.Subscribe(ChatKey("c1"), func(key string, snap any) {
		if snap != nil {
			keys = append(keys, key)
		}
	})()

	r.Publish(ChatKey("c10"), "other")
	r.Publish(ChatKey("c1x"), "other")
	r.Publish(ChatKey("c1"), "mine")

	if len(keys) != 1 || keys[0] != "chat:c1" {
		t.Errorf("delivered keys = %v, want [chat:c1] only", keys)
	}
}

func TestEmptyPrefixReceivesEverything(t *testing.T) {
	r := New()
	var keys []string
	defer r.Subscribe("", func(key string, snap any) {
		if snap != nil {
			keys = append(keys, key)
		}
	})()

	r.Publish(ChatList, "a")
	r.Publish(ChatKey("c1"), "b")
	r.Publish(Status, "c")

	if len(keys) != 3 {
		t.Errorf("delivered keys = %v, want all three publishes", keys)
	}
}

func TestIndependentSubscribers(t *testing.T) {
	r := New()
	a, b := 0, 0
	defer r.Subscribe(ChatList, func(_ string, snap any) {
		if snap != nil {
			a++
		}
	})()
	defer r.Subscribe(ChatList, func(_ string, snap any) {
		if snap != nil {
			b++
		}
	})()

	r.Publish(ChatList, "x")
	r.Publish(ChatList, "y")

	if a != 2 || b != 2 {
		t.Errorf("deliveries a=%d b=%d, want 2 each", a, b)
	}
}

func TestDrop(t *testing.T) {
	r := New()
	r.Publish(ChatList, "stale")
	r.Drop(ChatList)

	var got any = "sentinel"
	defer r.Subscribe(ChatList, func(_ string, snap any) {
		got = snap
	})()
	if got != nil {
		t.Errorf("replay after Drop = %v, want nil", got)
	}
}
