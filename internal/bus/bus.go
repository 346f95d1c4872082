package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cskr/pubsub"
)

const defaultCapacity = 128

// Subscription receives every message published on its topics until it is
// unsubscribed or the bus closes.
type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topic ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

// PubSubBus fans session events out to observers. Once closed, publishing
// is a no-op and new subscriptions come back already closed, so a late
// reader goroutine cannot wedge on a shut down broker.
type PubSubBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	ps     *pubsub.PubSub
	closed bool
}

func New(logger *slog.Logger) *PubSubBus {
	return NewWithCapacity(logger, defaultCapacity)
}

// NewWithCapacity sizes both the command queue and each subscriber channel.
func NewWithCapacity(logger *slog.Logger, capacity int) *PubSubBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = slog.Default().With("component", "bus")
	}

	return &PubSubBus{ps: pubsub.New(capacity), logger: logger}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Debug("publish after close dropped", "topic", topic)
		return
	}
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		ch := make(Subscription)
		close(ch)
		return ch
	}
	b.logger.Debug("subscribe", "topics", topics)

	return b.ps.Sub(topics...)
}

// Unsubscribe detaches ch from the given topics, or from all of them when
// none are given; a fully detached channel is closed.
func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

// Close shuts the broker down and closes every subscription. It is safe to
// call more than once.
func (b *PubSubBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%T", v)
}
