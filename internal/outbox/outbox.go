package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/event"
)

var (
	ErrEventNotFound = errors.New("outbox event not found")
	ErrNotDead       = errors.New("outbox event is not dead-lettered")
)

// Event is one outbox row. Rows are inserted in the same transaction as the
// domain change that produced them and mutated afterwards only by the relay
// (publish bookkeeping) or an operator requeue. The row ID doubles as the
// wire event_id consumers de-duplicate on.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Published     bool            `json:"published"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LeasedUntil   *time.Time      `json:"leased_until,omitempty"`
	Dead          bool            `json:"dead"`
}

func (e *Event) Clone() *Event {
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	if e.PublishedAt != nil {
		v := *e.PublishedAt
		c.PublishedAt = &v
	}
	if e.LastError != nil {
		v := *e.LastError
		c.LastError = &v
	}
	if e.LeasedUntil != nil {
		v := *e.LeasedUntil
		c.LeasedUntil = &v
	}
	return &c
}

// Envelope is the wire format published to the external bus. EventID is
// the consumer-side de-duplication key; AggregateID is the partition key,
// so one aggregate's events stay ordered on the bus.
type Envelope struct {
	EventID     uuid.UUID       `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

func (e *Event) Envelope() Envelope {
	return Envelope{
		EventID:     e.ID,
		EventType:   e.EventType,
		AggregateID: e.AggregateID,
		OccurredAt:  e.CreatedAt,
		Payload:     e.Payload,
	}
}

// Store is the producing side: a single insert sharing the caller's
// transaction. It must never reach the network.
type Store interface {
	InsertOutboxEvent(ctx context.Context, e *Event) error
}

// Storage is the relay side. ClaimBatch returns due, unpublished, undead
// rows in creation order, skipping rows claimed by other workers, and
// stamps a lease on what it returns; a crashed worker's claims become
// reclaimable once the lease expires.
type Storage interface {
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time, dead bool) error
	// RequeueDead puts a dead-lettered row back in rotation with a fresh
	// attempt budget.
	RequeueDead(ctx context.Context, id uuid.UUID) error
}

// Stats is the operator view of the outbox table.
type Stats struct {
	Pending       int        `json:"pending"`
	Published     int        `json:"published"`
	Dead          int        `json:"dead"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// Reader serves the operator queries.
type Reader interface {
	OutboxStats(ctx context.Context) (Stats, error)
	DeadEvents(ctx context.Context, limit int) ([]*Event, error)
}

// Enqueue serializes a domain event into an outbox row inside the caller's
// transaction. Dispatcher wiring registers this (via a closure binding the
// transaction's outbox store) as the last handler for every event type that
// external systems consume.
func Enqueue(ctx context.Context, st Store, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.EventName(), err)
	}
	now := time.Now()
	return st.InsertOutboxEvent(ctx, &Event{
		ID:            uuid.New(),
		EventType:     e.EventName(),
		AggregateID:   e.AggregateID(),
		Payload:       payload,
		CreatedAt:     now,
		NextAttemptAt: now,
	})
}

// Backoff returns the delay before retry number attempts (1-based):
// base doubled per prior failure, capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
