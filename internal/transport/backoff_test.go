package transport

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := &backoff{base: time.Second, max: 30 * time.Second, maxAttempts: 10}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		got, ok := b.next()
		if !ok {
			t.Fatalf("attempt %d: unexpectedly exhausted", i)
		}
		if got != w {
			t.Errorf("attempt %d: got %s, want %s", i, got, w)
		}
	}
}

func TestBackoffExhausts(t *testing.T) {
	b := &backoff{base: time.Millisecond, max: time.Second, maxAttempts: 3}
	for i := 0; i < 3; i++ {
		if _, ok := b.next(); !ok {
			t.Fatalf("attempt %d: exhausted early", i)
		}
	}
	if _, ok := b.next(); ok {
		t.Error("expected exhaustion after max attempts")
	}
}

func TestBackoffReset(t *testing.T) {
	b := &backoff{base: time.Second, max: 30 * time.Second, maxAttempts: 2}
	b.next()
	b.next()
	if _, ok := b.next(); ok {
		t.Fatal("expected exhaustion")
	}
	b.reset()
	got, ok := b.next()
	if !ok || got != time.Second {
		t.Errorf("after reset: got %s ok=%v, want 1s true", got, ok)
	}
}
