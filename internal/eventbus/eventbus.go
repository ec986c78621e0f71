package eventbus

import (
	"context"
	"sync"
	"time"
)

// Envelope is the opaque wire container every event travels in,
// regardless of backend. Journal events (spec 4.H) are carried as
// Envelope.Payload — this package never interprets them.
type Envelope struct {
	ID            string            // Globally unique id (UUID).
	Timestamp     time.Time         // Creation time, UTC.
	Source        string            // Name of the originating component.
	EventType     string            // Event kind (e.g. "world.ChunkGenerated").
	Version       int               // Payload schema version.
	CorrelationID string            // Links a causal chain of envelopes.
	Tenant        string            // Multi-tenancy key; unused today.
	Priority      int               // 0=Low .. 9=Critical, used for backpressure.
	Payload       []byte            // Encoded event (gob+zstd, matching persistence's codec).
	Metadata      map[string]string // Free-form metadata.
}

// Filter restricts a subscription to matching event types/sources.
type Filter struct {
	Types   []string // Empty matches every type.
	Sources []string // Empty matches every source.
}

// Subscription is returned on subscribe; lets the caller unsubscribe.
type Subscription interface {
	Unsubscribe()
}

// Handler consumes one delivered envelope.
type Handler func(ctx context.Context, ev *Envelope)

// Stats is the bus's aggregate throughput counters.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus abstracts the transport fanning journal events out to
// external collaborators. Two backends are provided: an in-memory bus
// for single-process use and tests, and a JetStream bus for a real
// deployment.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
}

//================ In-Memory implementation =================//

type memoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int
	stats       Stats
	buffer      chan *Envelope
	capacity    int
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus creates an in-memory bus with the given buffer capacity.
func NewMemoryBus(capacity int) EventBus {
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		capacity:    capacity,
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	select {
	case mb.buffer <- ev:
		mb.mu.Lock()
		mb.stats.Published++
		mb.mu.Unlock()
		return nil
	default:
		// Buffer full: drop anything below high priority.
		if ev.Priority < 5 {
			mb.mu.Lock()
			mb.stats.Dropped++
			mb.mu.Unlock()
			return nil
		}
		// High priority blocks until space frees up or ctx is cancelled.
		select {
		case mb.buffer <- ev:
			mb.mu.Lock()
			mb.stats.Published++
			mb.mu.Unlock()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	mb.mu.Unlock()

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	s := mb.stats
	s.InFlight = len(mb.buffer)
	return s
}

// dispatchLoop fans buffered events out to matching subscribers.
func (mb *memoryBus) dispatchLoop() {
	for ev := range mb.buffer {
		mb.mu.RLock()
		subs := make([]subscriber, 0, len(mb.subscribers))
		for _, sub := range mb.subscribers {
			subs = append(subs, sub)
		}
		mb.mu.RUnlock()

		for _, sub := range subs {
			if !matchFilter(ev, sub.filter) {
				continue
			}
			// Deliver on its own goroutine so one slow handler can't stall the rest.
			go func(s subscriber) {
				select {
				case <-s.ctx.Done():
					return
				default:
					s.handler(s.ctx, ev)
					mb.mu.Lock()
					mb.stats.Consumed++
					mb.mu.Unlock()
				}
			}(sub)
		}
	}
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
