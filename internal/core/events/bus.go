package events

import (
	"fmt"

	"sync"

	"go.uber.org/zap"
)

// Handler consumes one event of a single payload type. A returned error
// is reported to the bus owner and never propagated to the publisher.
type Handler[T Event] func(ev T) error

// Registration identifies one subscription so it can be dropped later.
type Registration struct {
	id        uint64
	eventType EventType
	fn        func(Event) error
}

// Bus is a process-wide typed publish/subscribe hub. Delivery is
// synchronous from the publishing call, in subscription order per
// payload type. Handlers of different types see no ordering guarantees
// relative to one another.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]*Registration
	nextID   uint64

	logger    *zap.SugaredLogger
	onError   func(EventType, error)
	onPublish func(EventType)
}

// BusOption configures a Bus at construction time.
type BusOption func(*Bus)

// WithErrorHandler routes handler errors to the bus owner. Without it
// they are logged and dropped.
func WithErrorHandler(fn func(EventType, error)) BusOption {
	return func(b *Bus) {
		b.onError = fn
	}
}

// WithPublishHook invokes fn for every published event, before delivery.
// Used to feed the metrics collector.
func WithPublishHook(fn func(EventType)) BusOption {
	return func(b *Bus) {
		b.onPublish = fn
	}
}

func NewBus(logger *zap.SugaredLogger, opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[EventType][]*Registration),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for every future event of payload type T.
func Subscribe[T Event](b *Bus, handler Handler[T]) *Registration {
	var zero T
	eventType := zero.Type()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	reg := &Registration{
		id:        b.nextID,
		eventType: eventType,
		fn: func(ev Event) error {
			return handler(ev.(T))
		},
	}
	b.handlers[eventType] = append(b.handlers[eventType], reg)
	return reg
}

// Unsubscribe drops a registration. Events published afterwards are no
// longer delivered to it. Unsubscribing twice is a no-op.
func (b *Bus) Unsubscribe(reg *Registration) {
	if reg == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[reg.eventType]
	for i, r := range regs {
		if r.id == reg.id {
			b.handlers[reg.eventType] = append(append([]*Registration{}, regs[:i]...), regs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every handler currently registered for its
// exact type, synchronously and in subscription order. A failing or
// panicking handler is isolated: it never prevents delivery to the
// handlers after it, and its error is reported to the bus owner.
func (b *Bus) Publish(ev Event) {
	if b.onPublish != nil {
		b.onPublish(ev.Type())
	}

	b.mu.RLock()
	regs := append([]*Registration{}, b.handlers[ev.Type()]...)
	b.mu.RUnlock()

	for _, reg := range regs {
		b.dispatch(reg, ev)
	}
}

func (b *Bus) dispatch(reg *Registration, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.reportError(ev.Type(), fmt.Errorf("event handler panicked: %v", r))
		}
	}()

	if err := reg.fn(ev); err != nil {
		b.reportError(ev.Type(), err)
	}
}

func (b *Bus) reportError(eventType EventType, err error) {
	if b.onError != nil {
		b.onError(eventType, err)
		return
	}
	if b.logger != nil {
		b.logger.Warnw("event handler failed",
			"event_type", eventType,
			"error", err,
		)
	}
}
