package pubsub

import (
	"context"
	"sync"

	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Subscription is one registered listener.
type Subscription struct {
	id    uint64
	round string
	ch    chan core.Notification
}

// C delivers notifications. It is closed on Unsubscribe or hub Close.
func (s *Subscription) C() <-chan core.Notification { return s.ch }

// Hub fans notifications out to in-process subscribers. A subscriber whose
// queue is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	next   uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a listener for round; an empty round receives every round.
func (h *Hub) Subscribe(round string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	sub := &Subscription{id: h.next, round: round, ch: make(chan core.Notification, buffer)}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	metrics.PubsubSubscribers.Inc()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.ch)
		metrics.PubsubSubscribers.Dec()
	}
}

// Publish never blocks on slow subscribers.
func (h *Hub) Publish(_ context.Context, n core.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.round != "" && sub.round != n.Round {
			continue
		}
		select {
		case sub.ch <- n:
			metrics.PubsubMessagesTotal.WithLabelValues("delivered").Inc()
		default:
			metrics.PubsubMessagesTotal.WithLabelValues("dropped").Inc()
		}
	}
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription; later subscriptions start closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
		metrics.PubsubSubscribers.Dec()
	}
	h.closed = true
}
