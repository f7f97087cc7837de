package bus

import (
	"sync"
	"sync/atomic"
)

type subscriber[T any] struct {
	id      string
	policy  DropPolicy
	sent    uint64
	dropped uint64

	// For DropNew policy
	ch chan<- T

	// For DropOld policy
	holder *LatestHolder[T]
}

// Bus fans items out to subscribers without ever blocking the publisher.
type Bus[T any] struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber[T]
	totalPublished uint64
	closed         bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{
		subscribers: make(map[string]*subscriber[T]),
	}
}

// Subscribe registers a channel with DropNew policy.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber[T]{id: id, policy: DropNew, ch: ch}
	return nil
}

// SubscribeDropOld registers a latest-item holder.
func (b *Bus[T]) SubscribeDropOld(id string) (*LatestHolder[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber[T]{id: id, policy: DropOld, holder: newLatestHolder[T]()}
	b.subscribers[id] = sub
	return sub.holder, nil
}

// Publish distributes item to all subscribers. Never blocks.
func (b *Bus[T]) Publish(item T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	atomic.AddUint64(&b.totalPublished, 1)

	for _, sub := range b.subscribers {
		switch sub.policy {
		case DropNew:
			select {
			case sub.ch <- item:
				atomic.AddUint64(&sub.sent, 1)
			default:
				atomic.AddUint64(&sub.dropped, 1)
			}

		case DropOld:
			overwrote, err := sub.holder.set(item)
			if err != nil {
				continue
			}
			atomic.AddUint64(&sub.sent, 1)
			if overwrote {
				atomic.AddUint64(&sub.dropped, 1)
			}
		}
	}
}

// Unsubscribe removes a subscriber. A DropOld receiver is closed, which wakes
// any goroutine blocked in Receive.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if sub.holder != nil {
		sub.holder.Close()
	}

	delete(b.subscribers, id)
	return nil
}

// SubscriberStats returns the counters of one subscriber.
func (b *Bus[T]) SubscriberStats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return sub.snapshot(), nil
}

// Stats returns a snapshot of all counters.
func (b *Bus[T]) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		TotalPublished: atomic.LoadUint64(&b.totalPublished),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, sub := range b.subscribers {
		s := sub.snapshot()
		stats.TotalSent += s.Sent
		stats.TotalDropped += s.Dropped
		stats.Subscribers[id] = s
	}
	return stats
}

// Close shuts down the bus and every DropOld receiver. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		if sub.holder != nil {
			sub.holder.Close()
		}
	}
	b.subscribers = nil
}

func (s *subscriber[T]) snapshot() SubscriberStats {
	return SubscriberStats{
		Policy:  s.policy,
		Sent:    atomic.LoadUint64(&s.sent),
		Dropped: atomic.LoadUint64(&s.dropped),
	}
}

// LatestHolder keeps the most recent item for a DropOld subscriber.
type LatestHolder[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	item   T
	seq    uint64 // items stored so far
	read   uint64 // seq of the last item returned by Receive/TryReceive
	closed bool
}

func newLatestHolder[T any]() *LatestHolder[T] {
	h := &LatestHolder[T]{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *LatestHolder[T]) set(item T) (overwrote bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false, ErrReceiverClosed
	}

	overwrote = h.seq > h.read
	h.item = item
	h.seq++
	h.cond.Broadcast()
	return overwrote, nil
}

// Receive blocks until an item newer than the last one returned is stored.
// It returns false once the receiver is closed.
func (h *LatestHolder[T]) Receive() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.seq == h.read && !h.closed {
		h.cond.Wait()
	}

	var zero T
	if h.closed {
		return zero, false
	}

	h.read = h.seq
	return h.item, true
}

// TryReceive returns the latest unread item without blocking.
func (h *LatestHolder[T]) TryReceive() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	if h.closed || h.seq == h.read {
		return zero, false
	}

	h.read = h.seq
	return h.item, true
}

// Close shuts down the receiver and wakes blocked readers.
func (h *LatestHolder[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
