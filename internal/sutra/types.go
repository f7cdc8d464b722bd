// Package sutra implements the in-process message bus: topic pub/sub with
// glob routing, bounded per-topic history, and one-shot WaitFor. It has no
// SSE streaming or webhook dispatch of its own.
package sutra

import "time"

// Message is a single published event.
type Message struct {
	ID        string
	Topic     string
	Payload   any
	Sender    string
	Timestamp time.Time
}

// Handler processes a delivered message. Handlers must not call back into
// the bus that is currently delivering to them (see spec §5 handler
// contract) — doing so has undefined deadlock order.
type Handler func(Message)

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Priority controls delivery order within one publish: higher fires first.
	Priority int
	// FilterSender, if non-empty, restricts delivery to messages from that sender.
	FilterSender string
	// Once unsubscribes automatically after the first matching delivery.
	Once bool
}

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

type subscription struct {
	id           uint64
	topic        string // exact topic, empty if pattern-based
	pattern      []string
	handler      Handler
	priority     int
	filterSender string
	once         bool
	seq          uint64 // insertion order, for stable priority ties
	removed      bool
}
