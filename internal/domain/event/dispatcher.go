package event

import (
	"context"
	"fmt"
)

// Handler reacts to a single event. T is the transaction handle the
// surrounding unit of work runs in; handlers receive it explicitly so every
// side effect they perform shares the producing transaction's fate.
type Handler[T any] interface {
	HandleEvent(ctx context.Context, tx T, e Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc[T any] func(ctx context.Context, tx T, e Event) error

func (f HandlerFunc[T]) HandleEvent(ctx context.Context, tx T, e Event) error {
	return f(ctx, tx, e)
}

// Dispatcher routes events to their registered handlers, synchronously and
// in registration order. A handler error aborts dispatch immediately; the
// caller is expected to roll back the whole transaction, including the
// state change that raised the event.
//
// Register is not safe for concurrent use: the handler table is built once
// during process startup and treated as read-only afterwards.
type Dispatcher[T any] struct {
	handlers map[string][]Handler[T]
}

func NewDispatcher[T any]() *Dispatcher[T] {
	return &Dispatcher[T]{handlers: make(map[string][]Handler[T])}
}

// Register subscribes a handler to an event name. Handlers for the same
// name run in the order they were registered.
func (d *Dispatcher[T]) Register(name string, h Handler[T]) {
	d.handlers[name] = append(d.handlers[name], h)
}

// RegisterFunc is shorthand for Register with a HandlerFunc.
func (d *Dispatcher[T]) RegisterFunc(name string, f func(ctx context.Context, tx T, e Event) error) {
	d.Register(name, HandlerFunc[T](f))
}

// Dispatch invokes the handlers of each event in turn. The first failure
// stops everything and is returned wrapped with the offending event name.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, tx T, events ...Event) error {
	for _, e := range events {
		for _, h := range d.handlers[e.EventName()] {
			if err := h.HandleEvent(ctx, tx, e); err != nil {
				return fmt.Errorf("dispatch %s: %w", e.EventName(), err)
			}
		}
	}
	return nil
}

// HandlerCount reports how many handlers are registered for an event name.
func (d *Dispatcher[T]) HandlerCount(name string) int {
	return len(d.handlers[name])
}
