package console

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultSubscriberBuffer is the queue depth of a subscription.
const DefaultSubscriberBuffer = 256

// Subscription is one subscriber's bounded queue of monitor lines.
type Subscription struct {
	id      string
	ch      chan ConsoleLine
	hub     *Hub
	dropped atomic.Uint64
	once    sync.Once
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// C delivers lines in arrival order. It is closed when the subscription or
// the hub is closed.
func (s *Subscription) C() <-chan ConsoleLine {
	return s.ch
}

// Dropped returns how many lines were skipped because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans monitor lines out to any number of subscribers. Publishing never
// blocks: a subscriber whose queue is full misses the line.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given queue depth. Subscribing to
// a closed hub returns a subscription whose channel is already closed.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	s := &Subscription{
		id:  uuid.NewString(),
		ch:  make(chan ConsoleLine, buffer),
		hub: h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// SubscribeFunc calls fn once per published line, in order, from a dedicated
// goroutine. The returned cancel function unsubscribes and waits for fn to
// return.
func (h *Hub) SubscribeFunc(fn func(ConsoleLine)) (cancel func()) {
	sub := h.Subscribe(DefaultSubscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range sub.C() {
			fn(line)
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

// Publish delivers line to every subscriber that has room for it.
func (h *Hub) Publish(line ConsoleLine) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		select {
		case s.ch <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Later subscriptions are born closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, s)
	s.once.Do(func() { close(s.ch) })
}
