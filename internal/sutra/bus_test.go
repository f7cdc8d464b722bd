package sutra

import (
	"sync"
	"testing"
	"time"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"a:b:c", "a:b:c", true},
		{"a:*:c", "a:b:c", true},
		{"a:*:c", "a:b:d:c", false},
		{"a:**:c", "a:b:d:c", true},
		{"a:**:c", "a:c", true},
		{"a:**", "a:b:c:d", true},
		{"**", "a:b:c", true},
		{"a:b", "a:b:c", false},
	}
	for _, c := range cases {
		if got := MatchTopic(c.pattern, c.topic); got != c.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", c.pattern, c.topic, got, c.want)
		}
	}
}

func TestPublishSubscribe_ExactTopic(t *testing.T) {
	b := New(Config{}, nil)
	var got Message
	unsub := b.Subscribe("agents:spawn", func(m Message) { got = m }, SubscribeOptions{})
	defer unsub()

	if _, err := b.Publish("agents:spawn", "payload", "tester"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.Payload != "payload" || got.Sender != "tester" {
		t.Fatalf("got = %+v", got)
	}
}

func TestPublish_PriorityOrdering(t *testing.T) {
	b := New(Config{}, nil)
	var order []string
	var mu sync.Mutex
	record := func(name string) Handler {
		return func(Message) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	b.Subscribe("t", record("low"), SubscribeOptions{Priority: 1})
	b.Subscribe("t", record("high"), SubscribeOptions{Priority: 10})
	b.Subscribe("t", record("mid"), SubscribeOptions{Priority: 5})

	b.Publish("t", nil, "")

	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSubscribePattern_MatchesGlob(t *testing.T) {
	b := New(Config{}, nil)
	var count int
	b.SubscribePattern("agents:*:spawned", func(Message) { count++ }, SubscribeOptions{})

	b.Publish("agents:root:spawned", nil, "")
	b.Publish("agents:child:spawned", nil, "")
	b.Publish("agents:root:killed", nil, "")

	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestSubscribe_Once(t *testing.T) {
	b := New(Config{}, nil)
	var count int
	b.Subscribe("t", func(Message) { count++ }, SubscribeOptions{Once: true})

	b.Publish("t", nil, "")
	b.Publish("t", nil, "")

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSubscribe_FilterSender(t *testing.T) {
	b := New(Config{}, nil)
	var count int
	b.Subscribe("t", func(Message) { count++ }, SubscribeOptions{FilterSender: "alice"})

	b.Publish("t", nil, "bob")
	b.Publish("t", nil, "alice")

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New(Config{}, nil)
	var count int
	unsub := b.Subscribe("t", func(Message) { count++ }, SubscribeOptions{})
	unsub()
	unsub() // idempotent

	b.Publish("t", nil, "")
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestHandlerPanic_DoesNotStopDelivery(t *testing.T) {
	b := New(Config{}, nil)
	var secondRan bool
	b.Subscribe("t", func(Message) { panic("boom") }, SubscribeOptions{Priority: 10})
	b.Subscribe("t", func(Message) { secondRan = true }, SubscribeOptions{Priority: 1})

	b.Publish("t", nil, "")

	if !secondRan {
		t.Fatal("second handler did not run after first panicked")
	}
}

func TestGetHistory_OldestFirstAndCapped(t *testing.T) {
	b := New(Config{HistoryCapacity: 3}, nil)
	for i := 0; i < 5; i++ {
		b.Publish("t", i, "")
	}
	hist := b.GetHistory("t", 0)
	if len(hist) != 3 {
		t.Fatalf("len(hist) = %d, want 3", len(hist))
	}
	want := []int{2, 3, 4}
	for i, m := range hist {
		if m.Payload.(int) != want[i] {
			t.Fatalf("hist[%d] = %v, want %d", i, m.Payload, want[i])
		}
	}
}

func TestGetHistory_UnknownTopic(t *testing.T) {
	b := New(Config{}, nil)
	if hist := b.GetHistory("nope", 0); hist != nil {
		t.Fatalf("hist = %v, want nil", hist)
	}
}

func TestWaitFor_ReceivesMatchingMessage(t *testing.T) {
	b := New(Config{}, nil)
	done := make(chan Message, 1)
	go func() {
		m, err := b.WaitFor("agents:*:spawned", time.Second)
		if err != nil {
			t.Errorf("WaitFor: %v", err)
			return
		}
		done <- m
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish("agents:root:spawned", "hi", "tester")

	select {
	case m := <-done:
		if m.Payload != "hi" {
			t.Fatalf("payload = %v, want hi", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return in time")
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	b := New(Config{}, nil)
	_, err := b.WaitFor("nothing", 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestDestroy_FailsSubsequentPublish(t *testing.T) {
	b := New(Config{}, nil)
	b.Destroy()
	if _, err := b.Publish("t", nil, ""); err != ErrDisposed {
		t.Fatalf("err = %v, want ErrDisposed", err)
	}
}

func TestDestroy_ReleasesWaiters(t *testing.T) {
	b := New(Config{}, nil)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.WaitFor("t", 0)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Destroy()

	select {
	case err := <-errCh:
		if err != ErrDisposed {
			t.Fatalf("err = %v, want ErrDisposed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released on Destroy")
	}
}

func TestHistoryEviction_LRU(t *testing.T) {
	b := New(Config{MaxTopics: 2}, nil)
	b.Publish("a", 1, "")
	b.Publish("b", 1, "")
	b.Publish("a", 2, "") // touches "a", making "b" the LRU entry
	b.Publish("c", 1, "") // evicts "b"

	if hist := b.GetHistory("b", 0); hist != nil {
		t.Fatalf("expected topic b evicted, got %v", hist)
	}
	if hist := b.GetHistory("a", 0); len(hist) != 2 {
		t.Fatalf("topic a history = %v, want 2 entries", hist)
	}
}
