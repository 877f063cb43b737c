// Package feed fans committed board events out to display consumers.
//
// A display (LCD panel, web dashboard, the CLI's follow mode) registers a
// buffered channel and receives every event the engine commits. Delivery
// never blocks the engine: when a consumer's channel is full the event is
// dropped for that consumer and counted.
//
//	bus := feed.New()
//	defer bus.Close()
//
//	ch := make(chan board.Event, 16)
//	bus.Subscribe("panel", ch)
//
// All methods are safe for concurrent use.
package feed

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")

	// ErrClosed is returned when operations are attempted on a closed bus.
	ErrClosed = errors.New("feed is closed")
)

// Stats contains global and per-subscriber delivery counts.
type Stats struct {
	// Published is the number of Publish calls.
	Published uint64

	// Sent and Dropped are summed over all subscribers.
	Sent    uint64
	Dropped uint64

	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks delivery to one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type counters struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes events to subscribers with a drop policy.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- board.Event
	stats       map[string]*counters
	closed      bool

	published atomic.Uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan<- board.Event),
		stats:       make(map[string]*counters),
	}
}

// Subscribe registers ch under id.
func (b *Bus) Subscribe(id string, ch chan<- board.Event) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = ch
	b.stats[id] = &counters{}
	return nil
}

// Unsubscribe removes the subscriber registered under id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	delete(b.stats, id)
	return nil
}

// Publish offers ev to every subscriber without blocking.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev board.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
			b.stats[id].sent.Add(1)
		default:
			b.stats[id].dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the delivery counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.stats)),
	}
	for id, c := range b.stats {
		s := SubscriberStats{Sent: c.sent.Load(), Dropped: c.dropped.Load()}
		st.Subscribers[id] = s
		st.Sent += s.Sent
		st.Dropped += s.Dropped
	}
	return st
}

// Close drops all subscribers. Their channels are not closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	b.closed = true
	b.subscribers = nil
	b.stats = nil
	return nil
}
