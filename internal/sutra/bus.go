package sutra

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"

	"github.com/darpana-core/darpana-core/internal/ring"
)

const (
	// DefaultHistoryCapacity is the default per-topic ring buffer size.
	DefaultHistoryCapacity = 1000
	// DefaultMaxTopics is the default cap on tracked topics before LRU eviction.
	DefaultMaxTopics = 10000
)

// Config tunes the bus's history retention.
type Config struct {
	HistoryCapacity int
	MaxTopics       int
}

func (c *Config) applyDefaults() {
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.MaxTopics <= 0 {
		c.MaxTopics = DefaultMaxTopics
	}
}

// Bus is the in-process publish/subscribe message bus.
type Bus struct {
	mu       sync.RWMutex
	config   Config
	logger   *slog.Logger
	disposed bool

	exact   map[string][]*subscription
	pattern []*subscription
	nextSeq uint64

	history *lru.Cache // topic -> *ring.Buffer[Message], LRU-evicted

	waiters map[string][]chan Message
}

// New creates a message bus with the given config.
func New(cfg Config, logger *slog.Logger) *Bus {
	cfg.applyDefaults()
	b := &Bus{
		config:  cfg,
		logger:  logger,
		exact:   make(map[string][]*subscription),
		waiters: make(map[string][]chan Message),
	}
	cache, err := lru.NewWithEvict(cfg.MaxTopics, func(key interface{}, _ interface{}) {
		if b.logger != nil {
			b.logger.Debug("sutra: evicting topic history (LRU)", "topic", key)
		}
	})
	if err != nil {
		// Only returns an error for size <= 0, which applyDefaults prevents.
		panic(fmt.Sprintf("sutra: invalid history cache size: %v", err))
	}
	b.history = cache
	return b
}

// ErrDisposed is returned by Publish and WaitFor called after Destroy.
var ErrDisposed = fmt.Errorf("sutra: bus disposed")

// Destroy marks the bus inert: Publish and WaitFor then fail with
// ErrDisposed, and pending WaitFor callers are released with it.
// Subscribe, SubscribePattern and GetHistory do not check the disposed flag.
func (b *Bus) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = true
	for _, chans := range b.waiters {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.waiters = nil
}

// Publish appends a message to the per-topic ring buffer and hands it to
// any matching WaitFor callers, then delivers it synchronously to all
// matching subscribers in priority order (highest first, ties broken by
// subscription order). Handler panics are trapped and logged; they never
// stop delivery to remaining handlers.
func (b *Bus) Publish(topic string, payload any, sender string) (string, error) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return "", ErrDisposed
	}

	msg := Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Sender:    sender,
		Timestamp: time.Now(),
	}

	recipients := b.matchingSubscriptionsLocked(topic)

	// Remove any "once" subscriptions about to fire, before releasing the
	// lock, so a concurrent publish can't double-deliver to them.
	for _, s := range recipients {
		if s.once {
			b.removeSubscriptionLocked(s)
		}
	}

	b.appendHistoryLocked(topic, msg)
	b.deliverToWaitersLocked(topic, msg)
	b.mu.Unlock()

	for _, s := range recipients {
		b.invokeHandler(s, msg)
	}

	return msg.ID, nil
}

func (b *Bus) invokeHandler(s *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error("sutra: subscriber handler panicked", "topic", msg.Topic, "recover", r)
			}
		}
	}()
	s.handler(msg)
}

// matchingSubscriptionsLocked returns subscribers matching topic, in
// delivery order (priority descending, ties by subscription order).
// Must be called with b.mu held.
func (b *Bus) matchingSubscriptionsLocked(topic string) []*subscription {
	var out []*subscription
	for _, s := range b.exact[topic] {
		if !s.removed {
			out = append(out, s)
		}
	}
	topicSegs := splitTopic(topic)
	for _, s := range b.pattern {
		if s.removed {
			continue
		}
		if matchFrom(s.pattern, topicSegs, 0, 0) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Subscribe registers an exact-topic handler.
func (b *Bus) Subscribe(topic string, handler Handler, opts SubscribeOptions) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	s := &subscription{
		id:           b.nextSeq,
		topic:        topic,
		handler:      handler,
		priority:     opts.Priority,
		filterSender: opts.FilterSender,
		once:         opts.Once,
		seq:          b.nextSeq,
	}
	s.handler = wrapSenderFilter(handler, opts.FilterSender)
	b.exact[topic] = append(b.exact[topic], s)
	return b.unsubscribeFunc(s)
}

// SubscribePattern registers a glob-pattern handler ("*" and "**" wildcards).
func (b *Bus) SubscribePattern(pattern string, handler Handler, opts SubscribeOptions) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	s := &subscription{
		id:           b.nextSeq,
		pattern:      splitTopic(pattern),
		priority:     opts.Priority,
		filterSender: opts.FilterSender,
		once:         opts.Once,
		seq:          b.nextSeq,
	}
	s.handler = wrapSenderFilter(handler, opts.FilterSender)
	b.pattern = append(b.pattern, s)
	return b.unsubscribeFunc(s)
}

func wrapSenderFilter(h Handler, sender string) Handler {
	if sender == "" {
		return h
	}
	return func(m Message) {
		if m.Sender != sender {
			return
		}
		h(m)
	}
}

func (b *Bus) unsubscribeFunc(s *subscription) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.removeSubscriptionLocked(s)
		})
	}
}

func (b *Bus) removeSubscriptionLocked(s *subscription) {
	s.removed = true
	if s.topic != "" {
		list := b.exact[s.topic]
		for i, o := range list {
			if o == s {
				b.exact[s.topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
	} else {
		for i, o := range b.pattern {
			if o == s {
				b.pattern = append(b.pattern[:i], b.pattern[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) appendHistoryLocked(topic string, msg Message) {
	var buf *ring.Buffer[Message]
	if v, ok := b.history.Get(topic); ok {
		buf = v.(*ring.Buffer[Message])
	} else {
		buf = ring.New[Message](b.config.HistoryCapacity)
	}
	buf.Push(msg)
	b.history.Add(topic, buf)
}

// GetHistory returns oldest-first messages for topic, capped at limit (0
// means no cap). Unknown topics return an empty slice.
func (b *Bus) GetHistory(topic string, limit int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.history.Peek(topic)
	if !ok {
		return nil
	}
	return v.(*ring.Buffer[Message]).Items(limit)
}

func (b *Bus) deliverToWaitersLocked(topic string, msg Message) {
	for _, waitTopic := range b.waitingTopicsLocked() {
		if !MatchTopic(waitTopic, topic) {
			continue
		}
		chans := b.waiters[waitTopic]
		delete(b.waiters, waitTopic)
		for _, ch := range chans {
			ch <- msg
			close(ch)
		}
	}
}

func (b *Bus) waitingTopicsLocked() []string {
	out := make([]string, 0, len(b.waiters))
	for t := range b.waiters {
		out = append(out, t)
	}
	return out
}

// ErrTimeout is returned by WaitFor when no matching message arrives in time.
var ErrTimeout = fmt.Errorf("sutra: wait timed out")

// WaitFor blocks until the next message matching topic is published, or
// timeout elapses (timeout == 0 means wait forever).
func (b *Bus) WaitFor(topic string, timeout time.Duration) (Message, error) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return Message{}, ErrDisposed
	}
	ch := make(chan Message, 1)
	b.waiters[topic] = append(b.waiters[topic], ch)
	b.mu.Unlock()

	if timeout <= 0 {
		msg, ok := <-ch
		if !ok {
			return Message{}, ErrDisposed
		}
		return msg, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-ch:
		if !ok {
			return Message{}, ErrDisposed
		}
		return msg, nil
	case <-timer.C:
		return Message{}, ErrTimeout
	}
}
