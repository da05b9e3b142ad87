package events

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// DefaultQueueSize is the per-subscriber buffer used when Subscribe is given
// a non-positive size.
const DefaultQueueSize = 64

// Filter selects which events a subscriber receives. Empty fields match
// everything; set fields must equal the event's corresponding field.
type Filter struct {
	UserID  string
	PartyID string
}

func (f Filter) matches(ev Event) bool {
	if f.UserID != "" && f.UserID != ev.UserID() {
		return false
	}
	if f.PartyID != "" && f.PartyID != ev.PartyID() {
		return false
	}
	return true
}

// Subscription is one subscriber's view of the bus. Receive from C; Close
// when done. The channel is never closed by the bus, so long-lived consumers
// select on Done to learn the subscription was closed out from under them.
type Subscription struct {
	C <-chan Event

	bus       *Bus
	id        uint64
	ch        chan Event
	filter    Filter
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	dropped   atomic.Uint64
}

// Close detaches the subscription from the bus and closes Done. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s.id)
		close(s.done)
	})
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped reports how many events were discarded because the subscriber fell
// behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// deliver enqueues without blocking the publisher: when the buffer is full
// the oldest queued event is discarded to make room.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- ev:
		return
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
		s.bus.logger.Debug("subscriber backlog full, dropping oldest", "type", ev.EventType())
	default:
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Bus fans events out to filtered subscribers and tracks the per-party
// state version.
type Bus struct {
	logger *log.Logger

	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	versions map[string]uint64
}

// NewBus creates an empty bus. The logger may be nil.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Bus{
		logger:   logger.WithPrefix("events"),
		subs:     make(map[uint64]*Subscription),
		versions: make(map[string]uint64),
	}
}

// Subscribe registers a sink for events matching the filter. queueSize bounds
// the undelivered backlog; overflow drops the oldest event first.
func (b *Bus) Subscribe(filter Filter, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ch := make(chan Event, queueSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		C:      ch,
		bus:    b,
		id:     b.nextID,
		ch:     ch,
		filter: filter,
		done:   make(chan struct{}),
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers the event to every matching subscriber. Delivery never
// blocks; a full subscriber loses its oldest event. Deleting a party also
// retires its version counter.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter.matches(ev) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.deliver(ev)
	}

	if ev.EventType() == TypePartyDeleted {
		b.mu.Lock()
		delete(b.versions, ev.PartyID())
		b.mu.Unlock()
	}
}

// StateChanged bumps the party's version and publishes the change with a
// short cause tag ("play", "draw", "zapzap", "advance", ...).
func (b *Bus) StateChanged(partyID, cause string) StateChangedEvent {
	b.mu.Lock()
	b.versions[partyID]++
	version := b.versions[partyID]
	b.mu.Unlock()

	ev := StateChangedEvent{
		meta:    newPartyMeta(partyID),
		Version: version,
		Cause:   cause,
	}
	b.Publish(ev)
	return ev
}

// Version returns the party's current state version, zero if none was ever
// published.
func (b *Bus) Version(partyID string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.versions[partyID]
}

// SubscriberCount is used by shutdown paths and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
