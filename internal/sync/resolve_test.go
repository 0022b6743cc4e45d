package sync

import (
	"encoding/json"
	"testing"

	"zapdesk/internal/cache"
)

func TestResolveChatIDOrder(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"camelCase wins", `{"chatId":"a","chat_id":"b","from":"c"}`, "a"},
		{"snake next", `{"chat_id":"b","conversationId":"c"}`, "b"},
		{"conversation next", `{"conversationId":"c","from":"d"}`, "c"},
		{"from next", `{"from":"d","chat":{"id":"e"}}`, "d"},
		{"nested last", `{"chat":{"id":"e"}}`, "e"},
		{"none", `{"id":"m1","body":"hi"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var im inboundMessage
			if err := json.Unmarshal([]byte(tc.payload), &im); err != nil {
				t.Fatal(err)
			}
			if got := resolveChatID(&im); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAckStatusMapping(t *testing.T) {
	named := inboundAck{Status: "delivered"}
	if got := named.status(); got != cache.StatusDelivered {
		t.Errorf("named status: got %q", got)
	}

	levels := map[int]string{
		-1: cache.StatusFailed,
		0:  cache.StatusPending,
		1:  cache.StatusSent,
		2:  cache.StatusDelivered,
		3:  cache.StatusRead,
		4:  cache.StatusRead,
	}
	for level, want := range levels {
		l := level
		ack := inboundAck{Ack: &l}
		if got := ack.status(); got != want {
			t.Errorf("ack %d: got %q, want %q", level, got, want)
		}
	}

	empty := inboundAck{}
	if got := empty.status(); got != "" {
		t.Errorf("empty ack: got %q, want empty", got)
	}
}

func TestAckIdentifierFallbacks(t *testing.T) {
	a := inboundAck{ID: "m1", ChatIDSnake: "c1"}
	if a.messageID() != "m1" || a.chatID() != "c1" {
		t.Errorf("fallbacks: got message %q chat %q", a.messageID(), a.chatID())
	}
	b := inboundAck{MessageID: "m2", ID: "ignored", ChatID: "c2", ChatIDSnake: "ignored"}
	if b.messageID() != "m2" || b.chatID() != "c2" {
		t.Errorf("primary fields: got message %q chat %q", b.messageID(), b.chatID())
	}
}
