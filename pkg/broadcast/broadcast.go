// Package broadcast provides a small in-process fan-out hub used to push
// state snapshots to UI observers. Publishing never blocks: when a
// subscriber has not consumed the previous snapshot yet, it is replaced by
// the newer one (latest-wins), since observers only care about the most
// recent state.
package broadcast

import (
	"context"
	"sync"
)

// Subscriber receives published values from a Hub.
type Subscriber[T any] struct {
	ch     chan T
	closed bool
	mu     sync.Mutex
}

func newSubscriber[T any]() *Subscriber[T] {
	// Buffer of one holds the pending snapshot between consumer reads.
	return &Subscriber[T]{ch: make(chan T, 1)}
}

// Receive returns the channel delivering published values.
// The channel is closed when the subscriber or its hub is closed.
func (s *Subscriber[T]) Receive() <-chan T {
	return s.ch
}

// Close closes the subscriber. Safe to call multiple times.
func (s *Subscriber[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
}

// send delivers v, replacing an unconsumed pending value if present.
func (s *Subscriber[T]) send(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- v:
			return
		default:
			select {
			case <-s.ch: // drop the stale value and retry
			default:
			}
		}
	}
}

// Hub fans published values out to all subscribers.
// All methods are safe for concurrent use.
type Hub[T any] struct {
	subs   map[*Subscriber[T]]struct{}
	closed bool
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscriber[T]]struct{})}
}

// Subscribe registers a new subscriber. The subscription is removed when
// ctx is cancelled. Subscribing to a closed hub returns a closed subscriber.
func (h *Hub[T]) Subscribe(ctx context.Context) *Subscriber[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := newSubscriber[T]()
	if h.closed {
		sub.Close()
		return sub
	}
	h.subs[sub] = struct{}{}

	if ctx.Done() != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			<-ctx.Done()
			h.unsubscribe(sub)
		}()
	}
	return sub
}

// Publish delivers v to every active subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		sub.send(v)
	}
}

// Close closes the hub and every subscriber. Safe to call multiple times.
// Subscriptions created with a still-live context are released once that
// context is cancelled.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.Close()
	}
	clear(h.subs)
	h.mu.Unlock()
}

func (h *Hub[T]) unsubscribe(sub *Subscriber[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		sub.Close()
	}
}
