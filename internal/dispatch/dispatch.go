// Package dispatch routes decoded wire events to registered handlers.
//
// Unlike the bus, delivery is synchronous and ordered: the connection
// manager's read loop is the single event loop, and every handler for a
// kind runs to completion, in registration order, before the next frame
// is read. A panicking handler is isolated so it cannot starve the
// handlers registered after it.
package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/wire"
)

// Handler processes one dispatched event.
type Handler func(wire.Event)

// Dispatcher maps event kinds to ordered handler lists.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[wire.Kind][]*Subscription
	logger *zap.Logger
}

// Subscription is the handle returned by On. Releasing it removes exactly
// the handler it was created for, so repeated register/release cycles
// cannot leak or double-register handlers.
type Subscription struct {
	d       *Dispatcher
	kind    wire.Kind
	fn      Handler
	once    sync.Once
	removed bool
}

// New creates an empty dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subs:   make(map[wire.Kind][]*Subscription),
		logger: logger,
	}
}

// On registers a handler for an event kind, appended after any existing
// handlers for that kind.
func (d *Dispatcher) On(kind wire.Kind, fn Handler) *Subscription {
	sub := &Subscription{d: d, kind: kind, fn: fn}
	d.mu.Lock()
	d.subs[kind] = append(d.subs[kind], sub)
	d.mu.Unlock()
	return sub
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.d.mu.Lock()
		defer s.d.mu.Unlock()
		list := s.d.subs[s.kind]
		for i, sub := range list {
			if sub == s {
				s.d.subs[s.kind] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		s.removed = true
	})
}

// Off removes every handler registered for a kind.
func (d *Dispatcher) Off(kind wire.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs[kind] {
		sub.removed = true
	}
	delete(d.subs, kind)
}

// Dispatch delivers an event to all handlers registered for its kind,
// synchronously and in registration order.
func (d *Dispatcher) Dispatch(evt wire.Event) {
	d.mu.RLock()
	list := make([]*Subscription, len(d.subs[evt.Kind]))
	copy(list, d.subs[evt.Kind])
	d.mu.RUnlock()

	for _, sub := range list {
		d.call(sub, evt)
	}
}

// call runs one handler with panic isolation: a handler that blows up
// must not prevent delivery to the handlers after it.
func (d *Dispatcher) call(sub *Subscription, evt wire.Event) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Error("event handler panicked",
				zap.String("kind", string(evt.Kind)),
				zap.Any("panic", r))
		}
	}()
	sub.fn(evt)
}
