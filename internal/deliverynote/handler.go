package deliverynote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/domain/event"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
)

// EventNoteRequested is consumed by the external document generator.
const EventNoteRequested = "deliverynote.requested"

// Stages of the fulfillment paperwork. A pick list tells the warehouse
// which locations to take the goods from; a delivery note travels with
// the parcel.
const (
	StagePicking  = "picking"
	StageDelivery = "delivery"
)

// PickLine points the warehouse at one reservation: this many units of
// this product, from this location.
type PickLine struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	ProductID     uuid.UUID  `json:"product_id"`
	VariantID     *uuid.UUID `json:"variant_id,omitempty"`
	LocationID    uuid.UUID  `json:"location_id"`
	Quantity      int        `json:"quantity"`
}

// NoteRequested asks the document service to produce the paperwork for
// one order at one stage.
type NoteRequested struct {
	OrderID     uuid.UUID  `json:"order_id"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	Stage       string     `json:"stage"`
	Lines       []PickLine `json:"lines"`
	RequestedAt time.Time  `json:"requested_at"`
}

func (e NoteRequested) EventName() string     { return EventNoteRequested }
func (e NoteRequested) AggregateID() string   { return e.OrderID.String() }
func (e NoteRequested) OccurredAt() time.Time { return e.RequestedAt }

// Handler subscribes to order lifecycle events and turns them into
// document requests. It runs inside the producing transaction, after the
// stock allocator, so the reservations it reads are the ones this very
// transaction created. It performs no network calls; the request leaves
// the process through the outbox like every other integration event.
type Handler struct {
	logger *logrus.Logger
}

func NewHandler(logger *logrus.Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) HandleEvent(ctx context.Context, tx store.Tx, e event.Event) error {
	switch evt := e.(type) {
	case order.OrderConfirmed:
		return h.request(ctx, tx, evt.OrderID, evt.CustomerID, StagePicking, evt.ConfirmedAt)
	case order.OrderReady:
		return h.request(ctx, tx, evt.OrderID, evt.CustomerID, StageDelivery, evt.ReadyAt)
	default:
		return nil
	}
}

func (h *Handler) request(ctx context.Context, tx store.Tx, orderID, customerID uuid.UUID, stage string, at time.Time) error {
	reservations, err := tx.Stock().ReservationsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load reservations for order %s: %w", orderID, err)
	}

	lines := make([]PickLine, 0, len(reservations))
	for _, r := range reservations {
		if r.Status != stock.ReservationReserved {
			continue
		}
		it, err := tx.Stock().ItemByID(ctx, r.ItemID)
		if err != nil {
			return fmt.Errorf("load item %s for reservation %s: %w", r.ItemID, r.ID, err)
		}
		lines = append(lines, PickLine{
			ReservationID: r.ID,
			ProductID:     it.ProductID,
			VariantID:     it.VariantID,
			LocationID:    it.LocationID,
			Quantity:      r.Quantity,
		})
	}

	note := NoteRequested{
		OrderID:     orderID,
		CustomerID:  customerID,
		Stage:       stage,
		Lines:       lines,
		RequestedAt: at,
	}
	if err := outbox.Enqueue(ctx, tx.Outbox(), note); err != nil {
		return fmt.Errorf("enqueue delivery note request: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"stage":    stage,
		"lines":    len(lines),
	}).Debug("[DeliveryNote] note requested")
	return nil
}
