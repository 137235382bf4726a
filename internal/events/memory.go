package events

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer is how many events a slow subscriber may lag behind before drops
const subscriberBuffer = 32

// MemoryBroker fans events out to subscribers of the same process
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscription) end() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// NewMemoryBroker creates an in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers e to every subscriber of its owner without blocking.
// Events for a subscriber whose buffer is full are dropped.
func (b *MemoryBroker) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[e.OwnerID] {
		select {
		case sub.ch <- e:
		default:
			slog.Warn("dropping event for slow subscriber",
				"owner_id", e.OwnerID,
				"event_type", e.Type,
			)
		}
	}
	return nil
}

// Subscribe registers a subscriber for ownerID
func (b *MemoryBroker) Subscribe(ctx context.Context, ownerID string) (<-chan Event, func(), error) {
	sub := &subscription{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.end()
		return sub.ch, func() {}, nil
	}
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[*subscription]struct{})
	}
	b.subs[ownerID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subs[ownerID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, ownerID)
			}
		}
		b.mu.Unlock()
		sub.end()
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, nil
}

// Close ends every subscription
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*subscription
	for owner, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
		delete(b.subs, owner)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.end()
	}
	return nil
}
