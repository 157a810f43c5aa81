// Package events implements small multi-consumer broadcast hubs for
// progress and file-stat notifications. No subscriber may block a
// producer: a full subscriber channel has its oldest buffered value
// discarded to make room for the newest one, the same non-blocking-send
// idiom the teacher uses for its idle-completion trigger channel
// (dlClient.idleTaskRun's `select { case dl.dlm.idleTrigger <- struct{}{}:
// default: }`), generalized from a single-slot hint channel to a
// per-subscriber buffered queue.
package events

import "sync"

const subscriberBuffer = 16

// Hub broadcasts values of type T to any number of subscribers.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

// NewHub creates an empty broadcast hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[chan T]struct{})}
}

// Subscribe registers a new consumer and returns its channel plus an
// unsubscribe function. Callers must call unsubscribe when done.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish sends v to every current subscriber without blocking. If a
// subscriber's buffer is full, its oldest queued value is dropped to
// make room for v.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Close tears down the hub, closing every subscriber channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
