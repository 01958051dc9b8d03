// Package eventbus implements the process-wide publish/subscribe registry
// described in spec.md §4.1: a closed set of event kinds, sequential
// per-publisher dispatch, and handler isolation — a handler's panic never
// prevents delivery to the bus's other subscribers.
//
// This replaces the teacher's reflection-driven EventRouter
// (pkg/events/event_router.go's RegisterStructHandlers) with an explicit
// Kind enum and typed Event struct, per spec.md §9's design note against
// dynamic dispatch over "anything with to_dict".
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Kind identifies one of the closed set of domain event variants.
type Kind string

const (
	KindBotInitialized     Kind = "BotInitialized"
	KindBotTaskAssigned    Kind = "BotTaskAssigned"
	KindBotSnapshotCaptured Kind = "BotSnapshotCaptured"
	KindBotTaskCompleted   Kind = "BotTaskCompleted"
	KindBotError           Kind = "BotError"
	KindBotClosed          Kind = "BotClosed"
	KindTaskStarted        Kind = "TaskStarted"
	KindPlaceExtracted     Kind = "PlaceExtracted"
	KindTaskCompleted      Kind = "TaskCompleted"
	KindTaskFailed         Kind = "TaskFailed"
)

// Event is the envelope carried through the bus. Payload holds one of the
// typed structs in events.go, selected by Kind — a switch on Kind, never a
// type assertion chain against "anything with ToDict/ToWire".
type Event struct {
	Kind       Kind
	CampaignID string
	Payload    interface{}
}

// Handler processes one Event. Handlers must not block indefinitely; long
// work must be forwarded to a bounded queue by the handler itself.
type Handler func(Event)

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

// Bus is the process-wide pub/sub registry. The zero value is not usable;
// construct with New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]*registration
	log      *zap.Logger
}

type registration struct {
	id int64
	h  Handler
}

// New constructs an empty Bus. A single instance is created once at
// process startup and injected into every constructor that needs it.
func New(log *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]*registration),
		log:      log,
	}
}

// Subscribe registers h for events of the given kind and returns a handle
// to unsubscribe it. Subscription-table mutation is guarded by an
// exclusive lock held only for the duration of Subscribe/Unsubscribe,
// never across dispatch.
func (b *Bus) Subscribe(kind Kind, h Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := nextRegistrationID()
	reg := &registration{id: id, h: h}
	b.handlers[kind] = append(b.handlers[kind], reg)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		regs := b.handlers[kind]
		for i, r := range regs {
			if r.id == id {
				b.handlers[kind] = append(regs[:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches event to every handler currently registered for its
// Kind, in subscription order. Dispatch is sequential: within one Publish
// call, handlers run one after another on the caller's goroutine. A
// handler that panics is isolated — the panic is recovered and logged and
// does not prevent delivery to the remaining handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := make([]*registration, len(b.handlers[event.Kind]))
	copy(regs, b.handlers[event.Kind])
	b.mu.RUnlock()

	for _, reg := range regs {
		b.dispatchOne(reg, event)
	}
}

func (b *Bus) dispatchOne(reg *registration, event Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("eventbus: handler panicked",
				zap.Any("kind", event.Kind),
				zap.Any("recovered", r),
			)
		}
	}()
	reg.h(event)
}

// SubscriberCount returns the number of handlers registered for kind, for
// the debug diagnostics endpoint (SPEC_FULL.md §4).
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

// Stats returns the subscriber count for every kind that currently has at
// least one registered handler, for the /api/debug/eventbus endpoint
// (SPEC_FULL.md §4).
func (b *Bus) Stats() map[Kind]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := make(map[Kind]int, len(b.handlers))
	for kind, regs := range b.handlers {
		if len(regs) > 0 {
			stats[kind] = len(regs)
		}
	}
	return stats
}

var regIDCounter struct {
	mu sync.Mutex
	n  int64
}

func nextRegistrationID() int64 {
	regIDCounter.mu.Lock()
	defer regIDCounter.mu.Unlock()
	regIDCounter.n++
	return regIDCounter.n
}
