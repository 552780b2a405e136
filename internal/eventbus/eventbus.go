// Package eventbus fans events out to SSE subscribers.
package eventbus

import "sync"

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus delivers every published event to all current subscribers without
// blocking the publisher. A subscriber whose buffer is full misses events.
type Bus[E any] struct {
	buffer int

	mu   sync.RWMutex
	subs map[<-chan E]chan E
}

// New creates a bus whose subscribers buffer DefaultBuffer events.
func New[E any]() *Bus[E] {
	return NewBuffered[E](DefaultBuffer)
}

// NewBuffered creates a bus with a custom subscriber buffer.
func NewBuffered[E any](buffer int) *Bus[E] {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus[E]{buffer: buffer, subs: make(map[<-chan E]chan E)}
}

// Subscribe registers a new listener.
func (b *Bus[E]) Subscribe() <-chan E {
	ch := make(chan E, b.buffer)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus[E]) Unsubscribe(ch <-chan E) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if send, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(send)
	}
}

// Publish sends evt to every subscriber. A nil bus drops it.
func (b *Bus[E]) Publish(evt E) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
