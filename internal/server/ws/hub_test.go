package ws

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
)

// stubBus hands out controllable per-topic feeds in place of Redis.
type stubBus struct {
	mu    sync.Mutex
	feeds map[string]chan domain.Signal
}

func newStubBus() *stubBus {
	return &stubBus{feeds: make(map[string]chan domain.Signal)}
}

func (b *stubBus) Publish(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(_ context.Context, topic string) (<-chan domain.Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Signal, 8)
	b.feeds[topic] = ch
	return ch, nil
}

// feed returns the channel behind a topic subscription, waiting for the
// hub's subscriber goroutine to establish it.
func (b *stubBus) feed(t *testing.T, topic string) chan domain.Signal {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		ch, ok := b.feeds[topic]
		b.mu.Unlock()
		if ok {
			return ch
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscription established for %q", topic)
	return nil
}

func newTestClient(h *Hub) *client {
	return &client{
		hub:  h,
		send: make(chan []byte, 8),
		subs: map[string]bool{domain.TopicPositions: true},
	}
}

func TestRunShutdownReleasesClients(t *testing.T) {
	h := NewHub(newStubBus(), slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- h.Run(ctx) }()

	c := newTestClient(h)
	if !h.add(c) {
		t.Fatal("add failed before shutdown")
	}

	cancel()

	select {
	case err := <-runDone:
		if err != context.Canceled {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancel")
	}

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected send channel closed after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after shutdown")
	}

	// A client disconnecting after shutdown must not block forever on the
	// unregister channel.
	dropped := make(chan struct{})
	go func() {
		h.drop(c)
		close(dropped)
	}()
	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("drop blocked after shutdown")
	}

	if h.add(newTestClient(h)) {
		t.Fatal("add accepted a client after shutdown")
	}
}

func TestBroadcastRespectsTopicSubscriptions(t *testing.T) {
	bus := newStubBus()
	h := NewHub(bus, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- h.Run(ctx) }()
	defer func() { cancel(); <-runDone }()

	global := newTestClient(h)
	room := newTestClient(h)
	for _, c := range []*client{global, room} {
		if !h.add(c) {
			t.Fatal("add failed")
		}
	}
	room.handleSubscription(subscribeMsg{
		Action: "subscribe",
		Topics: []string{domain.PositionTopic("p1")},
	})

	payload := []byte(`{"type":"exit_update"}`)
	bus.feed(t, domain.PositionTopic("*")) <- domain.Signal{
		Topic:   domain.PositionTopic("p1"),
		Payload: payload,
	}

	select {
	case msg := <-room.send:
		if string(msg) != string(payload) {
			t.Fatalf("payload = %s, want %s", msg, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed client did not receive the room event")
	}

	select {
	case msg := <-global.send:
		t.Fatalf("client without the room subscription received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
