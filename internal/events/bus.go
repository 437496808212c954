package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/annunciator-core/internal/infrastructure/logging"
)

// Default buffer sizes, used when Options leaves a field at zero.
const (
	defaultBufferSize       = 500
	defaultSubscriberBuffer = 64
	defaultForwardQueue     = 1024
)

// Options sizes the Bus buffers.
type Options struct {
	// BufferSize is how many recent events are kept for replay.
	BufferSize int

	// SubscriberBuffer is the channel capacity per live subscriber.
	SubscriberBuffer int

	// ForwardQueue is the capacity of the queue feeding forwarders.
	ForwardQueue int
}

type namedForwarder struct {
	name string
	fwd  Forwarder
}

// Bus is the process-wide event sink.
//
// Emit never blocks: the recent-event ring is bounded, subscriber channels
// are buffered and an event is dropped for a subscriber whose buffer is
// full, and the forwarder queue drops on overflow.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bus struct {
	logger *logging.Logger

	mu        sync.Mutex
	nextID    uint64
	recent    []Event
	capacity  int
	subs      map[*Subscription]struct{}
	subBuffer int

	fwdMu      sync.RWMutex
	forwarders []namedForwarder
	forwardCh  chan Event

	dropped atomic.Uint64
}

// NewBus creates a Bus. Call Run to start delivering to forwarders.
func NewBus(logger *logging.Logger, opts Options) *Bus {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.ForwardQueue <= 0 {
		opts.ForwardQueue = defaultForwardQueue
	}

	return &Bus{
		logger:    logger.With("component", "events"),
		recent:    make([]Event, 0, opts.BufferSize),
		capacity:  opts.BufferSize,
		subs:      make(map[*Subscription]struct{}),
		subBuffer: opts.SubscriberBuffer,
		forwardCh: make(chan Event, opts.ForwardQueue),
	}
}

// Emit records an event, logs it, and hands it to subscribers and forwarders.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}

	b.mu.Lock()
	b.nextID++
	e.ID = b.nextID
	b.recent = append(b.recent, e)
	if len(b.recent) > b.capacity {
		b.recent = b.recent[1:]
	}
	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
		}
	}
	b.mu.Unlock()

	b.log(e)

	select {
	case b.forwardCh <- e:
	default:
		b.dropped.Add(1)
	}
}

// log mirrors the event into the structured log.
func (b *Bus) log(e Event) {
	args := []any{"event_id", e.ID, "event_type", e.Type}
	for k, v := range e.Data {
		args = append(args, k, v)
	}

	switch e.Level {
	case LevelCritical:
		b.logger.Critical(e.Message, args...)
	case LevelError:
		b.logger.Error(e.Message, args...)
	case LevelWarn:
		b.logger.Warn(e.Message, args...)
	case LevelRequest, LevelResponse:
		b.logger.Debug(e.Message, args...)
	default:
		b.logger.Log(context.Background(), slog.LevelInfo, e.Message, args...)
	}
}

// Subscription is one live observer of the bus.
type Subscription struct {
	bus     *Bus
	ch      chan Event
	once    sync.Once
	dropped atomic.Uint64
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the subscriber lagged.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// Subscribe registers a live observer that receives events emitted from now on.
func (b *Bus) Subscribe() *Subscription {
	sub, _ := b.SubscribeSince(0)
	return sub
}

// SubscribeSince registers a live observer and returns, atomically with the
// registration, the buffered events with an ID greater than lastID. A lastID
// of zero returns no backlog. Nothing is lost or duplicated between the
// backlog and the live channel.
func (b *Bus) SubscribeSince(lastID uint64) (*Subscription, []Event) {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, b.subBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var backlog []Event
	if lastID > 0 {
		for _, e := range b.recent {
			if e.ID > lastID {
				backlog = append(backlog, e)
			}
		}
	}
	b.subs[sub] = struct{}{}

	return sub, backlog
}

// Recent returns up to n of the most recent events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]Event, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many events never reached the forwarder queue.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// AddForwarder registers a downstream consumer. Safe to call while Run is active.
func (b *Bus) AddForwarder(name string, f Forwarder) {
	b.fwdMu.Lock()
	b.forwarders = append(b.forwarders, namedForwarder{name: name, fwd: f})
	b.fwdMu.Unlock()
}

// Run delivers queued events to forwarders one at a time until ctx is
// cancelled, then drains whatever is still queued.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case e := <-b.forwardCh:
			b.forward(ctx, e)
		case <-ctx.Done():
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case e := <-b.forwardCh:
					b.forward(drainCtx, e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) forward(ctx context.Context, e Event) {
	b.fwdMu.RLock()
	forwarders := b.forwarders
	b.fwdMu.RUnlock()

	for _, nf := range forwarders {
		if err := nf.fwd.Forward(ctx, e); err != nil {
			// Logged, not emitted: emitting here would feed the failure back
			// into the same forwarder.
			b.logger.Warn("event forwarder failed",
				"forwarder", nf.name,
				"event_type", e.Type,
				"error", err,
			)
		}
	}
}
