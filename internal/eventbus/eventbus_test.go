package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New[string](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish("hello")
	for i, sub := range []<-chan string{s1, s2} {
		select {
		case got := <-sub:
			if got != "hello" {
				t.Fatalf("subscriber %d got %q", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()
	b.Publish(1)
	b.Publish(2) // full buffer, dropped

	if got := <-sub; got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	select {
	case got := <-sub:
		t.Fatalf("expected no second event, got %d", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// publishing after unsubscribe must not panic
	b.Publish(42)
}

func TestCloseIsTerminal(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()
	b.Close()
	if _, ok := <-sub; ok {
		t.Fatal("channel still open after close")
	}
	late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscription after close must come back closed")
	}
	b.Publish(1) // no-op
	b.Close()    // idempotent
}
