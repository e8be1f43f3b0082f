package event

import "time"

// Event is a fact about a completed state change inside an aggregate.
// Events are dispatched synchronously to in-process handlers within the
// same transaction that produced them.
type Event interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// Recorder collects events raised during a unit of work. Aggregates embed
// it and record an event alongside each state change; the enclosing
// use-case drains the recorder and hands the events to the dispatcher
// before committing.
type Recorder struct {
	events []Event
}

// Record appends an event to the pending list.
func (r *Recorder) Record(e Event) {
	r.events = append(r.events, e)
}

// PullEvents returns the pending events and clears the list. A second call
// without intervening Records returns nil, so a retried use-case never
// dispatches the same event twice.
func (r *Recorder) PullEvents() []Event {
	events := r.events
	r.events = nil
	return events
}

// HasPending reports whether any recorded events have not been pulled.
func (r *Recorder) HasPending() bool {
	return len(r.events) > 0
}
