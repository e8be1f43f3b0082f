package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCanceled  = "OrderCanceled"
	EventOrderReady     = "OrderReady"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventOrderInvoiced  = "OrderInvoiced"
)

// ConfirmedLine carries the allocation-relevant view of a line inside
// OrderConfirmed, so handlers never reach back into the aggregate.
type ConfirmedLine struct {
	LineID    uuid.UUID       `json:"line_id"`
	ProductID uuid.UUID       `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderConfirmed struct {
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	Lines       []ConfirmedLine `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	ActorID     uuid.UUID       `json:"actor_id"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

func (e OrderConfirmed) EventName() string     { return EventOrderConfirmed }
func (e OrderConfirmed) AggregateID() string   { return e.OrderID.String() }
func (e OrderConfirmed) OccurredAt() time.Time { return e.ConfirmedAt }

type OrderCanceled struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Reason     string    `json:"reason"`
	ActorID    uuid.UUID `json:"actor_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

func (e OrderCanceled) EventName() string     { return EventOrderCanceled }
func (e OrderCanceled) AggregateID() string   { return e.OrderID.String() }
func (e OrderCanceled) OccurredAt() time.Time { return e.CanceledAt }

type OrderReady struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ReadyAt    time.Time `json:"ready_at"`
}

func (e OrderReady) EventName() string     { return EventOrderReady }
func (e OrderReady) AggregateID() string   { return e.OrderID.String() }
func (e OrderReady) OccurredAt() time.Time { return e.ReadyAt }

type OrderShipped struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ShippedAt  time.Time `json:"shipped_at"`
}

func (e OrderShipped) EventName() string     { return EventOrderShipped }
func (e OrderShipped) AggregateID() string   { return e.OrderID.String() }
func (e OrderShipped) OccurredAt() time.Time { return e.ShippedAt }

type OrderDelivered struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (e OrderDelivered) EventName() string     { return EventOrderDelivered }
func (e OrderDelivered) AggregateID() string   { return e.OrderID.String() }
func (e OrderDelivered) OccurredAt() time.Time { return e.DeliveredAt }

type OrderInvoiced struct {
	OrderID    uuid.UUID       `json:"order_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	InvoicedAt time.Time       `json:"invoiced_at"`
}

func (e OrderInvoiced) EventName() string     { return EventOrderInvoiced }
func (e OrderInvoiced) AggregateID() string   { return e.OrderID.String() }
func (e OrderInvoiced) OccurredAt() time.Time { return e.InvoicedAt }
