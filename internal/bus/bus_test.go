package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestPubSubBusDeliversToTopicSubscribers(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer b.Close()

	sub := b.Subscribe("a", "b")
	other := b.Subscribe("c")

	b.Publish("a", 1)
	b.Publish("b", "two")

	for _, want := range []any{1, "two"} {
		select {
		case got := <-sub:
			if got != want {
				t.Fatalf("unexpected message: got %v, want %v", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}

	select {
	case got := <-other:
		t.Fatalf("unexpected delivery to unrelated topic: %v", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPubSubBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewWithCapacity(nil, 4)
	defer b.Close()

	sub := b.Subscribe("a")
	b.Unsubscribe(sub)

	select {
	case _, ok := <-sub:
		if ok {
			t.Fatalf("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for channel close")
	}
}

func TestPayloadType(t *testing.T) {
	if got := payloadType(nil); got != "<nil>" {
		t.Fatalf("unexpected nil payload type: %q", got)
	}
	if got := payloadType(struct{}{}); got != "struct {}" {
		t.Fatalf("unexpected payload type: %q", got)
	}
}

func TestPubSubBusIsInertAfterClose(t *testing.T) {
	b := NewWithCapacity(nil, 1)
	sub := b.Subscribe("a")
	b.Close()
	b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish("a", i)
		}
		b.Unsubscribe(sub)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish after close blocked")
	}

	late := b.Subscribe("a")
	if _, ok := <-late; ok {
		t.Fatalf("subscription after close must be closed")
	}
	for range sub {
	}
}
