// Package eventbus fans out typed notebook events to subscribers over
// bounded queues.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
)

// DefaultQueueSize is the per-subscriber event queue capacity.
const DefaultQueueSize = 64

// Subscriber is one registered event consumer with its own bounded FIFO
// queue.
type Subscriber struct {
	id      string
	ch      chan domain.Event
	dropped atomic.Int64
	bus     *Bus
	once    sync.Once
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Close removes the subscriber from the bus and closes its channel.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
}

// Events returns the subscriber's delivery channel. The channel is closed
// on unsubscribe.
func (s *Subscriber) Events() <-chan domain.Event {
	return s.ch
}

// Bus publishes events to every subscriber. Publishing never blocks: when a
// subscriber's queue is full the oldest pending event is dropped and the
// next delivered event carries the drop count.
type Bus struct {
	mu        sync.Mutex
	subs      map[string]*Subscriber
	queueSize int
	logger    *logger.Logger
	snapshot  func() *domain.Notebook
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize overrides the per-subscriber queue capacity.
func WithQueueSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[string]*Subscriber),
		queueSize: DefaultQueueSize,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetSnapshotProvider registers the function used to build the
// notebook_state event pushed to every new subscriber.
func (b *Bus) SetSnapshotProvider(fn func() *domain.Notebook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = fn
}

// Subscribe registers a new subscriber and immediately queues a
// notebook_state snapshot for it.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		id: uuid.New().String(),
		ch: make(chan domain.Event, b.queueSize),
	}
	s.bus = b

	b.mu.Lock()
	b.subs[s.id] = s
	snapshot := b.snapshot
	b.mu.Unlock()

	if snapshot != nil {
		s.ch <- domain.Event{
			Type:      domain.EventTypeNotebookState,
			Notebook:  snapshot(),
			Timestamp: time.Now(),
		}
	}

	b.logger.Debug("subscriber registered", "subscriber_id", s.id)
	return s
}

func (b *Bus) unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[s.id]
	delete(b.subs, s.id)
	b.mu.Unlock()

	if ok {
		s.once.Do(func() { close(s.ch) })
		b.logger.Debug("subscriber removed", "subscriber_id", s.id)
	}
}

// Publish fans the event out to every subscriber queue. Enqueues are
// non-blocking, so the bus lock is held for the whole fan-out; this also
// keeps delivery ordered with respect to unsubscription.
func (b *Bus) Publish(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		b.deliver(s, ev)
	}
}

// deliver enqueues one event, evicting the oldest pending event when the
// queue is full.
func (b *Bus) deliver(s *Subscriber, ev domain.Event) {
	if n := s.dropped.Swap(0); n > 0 {
		ev.Dropped = n
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Queue full: evict one and retry once.
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
		b.logger.Warn("event dropped, subscriber queue full",
			"subscriber_id", s.id,
			"event_type", string(ev.Type),
		)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
