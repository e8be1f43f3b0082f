package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/order-fulfillment/internal/domain/event"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusConfirmed     Status = "confirmed"
	StatusInPreparation Status = "in_preparation"
	StatusReady         Status = "ready"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusInvoiced      Status = "invoiced"
	StatusCanceled      Status = "canceled"
)

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrEmptyOrder               = errors.New("order must have at least one line")
	ErrInvalidStatus            = errors.New("invalid order status transition")
	ErrOrderCanceled            = errors.New("order is canceled")
	ErrOrderShipped             = errors.New("cannot cancel an order after shipment")
	ErrNotDraft                 = errors.New("order lines can only change in draft")
	ErrLineNotFound             = errors.New("order line not found")
	ErrInvalidLine              = errors.New("line requires a positive quantity and a non-negative price")
	ErrInvalidDiscount          = errors.New("discount percent must be between 0 and 100")
	ErrDiscountApprovalRequired = errors.New("discount exceeds threshold and requires approval")
	ErrCreditExceeded           = errors.New("customer credit limit exceeded")
	ErrNotArchivable            = errors.New("only invoiced or canceled orders can be archived")
	ErrOrderArchived            = errors.New("order is archived")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusDraft:         {StatusConfirmed, StatusCanceled},
	StatusConfirmed:     {StatusInPreparation, StatusCanceled},
	StatusInPreparation: {StatusReady, StatusCanceled},
	StatusReady:         {StatusShipped, StatusCanceled},
	StatusShipped:       {StatusDelivered},
	StatusDelivered:     {StatusInvoiced},
	StatusInvoiced:      {}, // terminal state
	StatusCanceled:      {}, // terminal state
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCanceled:
		return ErrOrderCanceled
	case target == StatusCanceled && (o.Status == StatusShipped || o.Status == StatusDelivered || o.Status == StatusInvoiced):
		return ErrOrderShipped
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// Line is one priced order line. Lines belong exclusively to their order and
// are only mutable while the order is draft.
type Line struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Label     string          `json:"label"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	Status           Status          `json:"status"`
	Lines            []Line          `json:"lines"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	DiscountApproved bool            `json:"discount_approved"`
	CreditCheck      bool            `json:"credit_check"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	ReadyAt          *time.Time      `json:"ready_at,omitempty"`
	ShippedAt        *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	InvoicedAt       *time.Time      `json:"invoiced_at,omitempty"`
	CanceledAt       *time.Time      `json:"canceled_at,omitempty"`
	ArchivedAt       *time.Time      `json:"archived_at,omitempty"`
	Version          int             `json:"version"`

	event.Recorder `json:"-"`
}

// New creates a draft order. CreditCheck marks customers whose confirmations
// must pass the credit collaborator.
func New(customerID uuid.UUID, creditCheck bool) *Order {
	now := time.Now()
	return &Order{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Status:      StatusDraft,
		Lines:       []Line{},
		CreditCheck: creditCheck,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AddLine appends a priced line. Draft only.
func (o *Order) AddLine(productID uuid.UUID, variantID *uuid.UUID, label string, qty int, unitPrice decimal.Decimal) (*Line, error) {
	if o.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	if qty <= 0 || unitPrice.IsNegative() {
		return nil, ErrInvalidLine
	}
	line := Line{
		ID:        uuid.New(),
		ProductID: productID,
		VariantID: variantID,
		Label:     label,
		Quantity:  qty,
		UnitPrice: unitPrice,
	}
	o.Lines = append(o.Lines, line)
	o.UpdatedAt = time.Now()
	return &o.Lines[len(o.Lines)-1], nil
}

// RemoveLine drops a line by id. Draft only.
func (o *Order) RemoveLine(lineID uuid.UUID) error {
	if o.Status != StatusDraft {
		return ErrNotDraft
	}
	for i, l := range o.Lines {
		if l.ID == lineID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrLineNotFound
}

// SetDiscount sets the order-level discount percent. The approved flag is
// granted out of band and checked against the threshold on confirm.
func (o *Order) SetDiscount(percent decimal.Decimal, approved bool) error {
	if o.Status != StatusDraft {
		return ErrNotDraft
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidDiscount
	}
	o.DiscountPercent = percent
	o.DiscountApproved = approved
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Total applies the order discount to the line subtotals, rounded to cents.
func (o *Order) Total() decimal.Decimal {
	sub := o.Subtotal()
	if o.DiscountPercent.IsZero() {
		return sub.Round(2)
	}
	factor := decimal.NewFromInt(1).Sub(o.DiscountPercent.Div(decimal.NewFromInt(100)))
	return sub.Mul(factor).Round(2)
}

// Line returns the line with the given id.
func (o *Order) Line(lineID uuid.UUID) (*Line, error) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], nil
		}
	}
	return nil, ErrLineNotFound
}

// Confirm transitions draft → confirmed and records OrderConfirmed. The
// aggregate checks what it can see alone: the line shape and the discount
// approval against the threshold. Credit and stock are collaborator checks
// owned by the command layer, which must run them before calling Confirm.
func (o *Order) Confirm(actorID uuid.UUID, discountThreshold decimal.Decimal) error {
	if !o.CanTransitionTo(StatusConfirmed) {
		return o.transitionError(StatusConfirmed)
	}
	if len(o.Lines) == 0 {
		return ErrEmptyOrder
	}
	if o.DiscountPercent.GreaterThan(discountThreshold) && !o.DiscountApproved {
		return ErrDiscountApprovalRequired
	}

	now := time.Now()
	o.Status = StatusConfirmed
	o.ConfirmedAt = &now
	o.UpdatedAt = now

	lines := make([]ConfirmedLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, ConfirmedLine{
			LineID:    l.ID,
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	o.Record(OrderConfirmed{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Lines:       lines,
		Total:       o.Total(),
		ActorID:     actorID,
		ConfirmedAt: now,
	})
	return nil
}

// Cancel is valid from any state before shipment. Records OrderCanceled so
// the allocator handler releases every reservation in the same transaction.
func (o *Order) Cancel(actorID uuid.UUID, reason string) error {
	if !o.CanTransitionTo(StatusCanceled) {
		return o.transitionError(StatusCanceled)
	}
	now := time.Now()
	o.Status = StatusCanceled
	o.CancelReason = reason
	o.CanceledAt = &now
	o.UpdatedAt = now
	o.Record(OrderCanceled{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Reason:     reason,
		ActorID:    actorID,
		CanceledAt: now,
	})
	return nil
}

// StartPreparation moves confirmed → in_preparation. No external system
// cares about this transition, so no event is recorded.
func (o *Order) StartPreparation() error {
	if !o.CanTransitionTo(StatusInPreparation) {
		return o.transitionError(StatusInPreparation)
	}
	o.Status = StatusInPreparation
	o.UpdatedAt = time.Now()
	return nil
}

// MarkReady moves in_preparation → ready and records OrderReady, which the
// delivery-note handler turns into a pick document.
func (o *Order) MarkReady() error {
	if !o.CanTransitionTo(StatusReady) {
		return o.transitionError(StatusReady)
	}
	now := time.Now()
	o.Status = StatusReady
	o.ReadyAt = &now
	o.UpdatedAt = now
	o.Record(OrderReady{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		ReadyAt:    now,
	})
	return nil
}

// Ship moves ready → shipped. Cancellation is closed from here on.
func (o *Order) Ship() error {
	if !o.CanTransitionTo(StatusShipped) {
		return o.transitionError(StatusShipped)
	}
	now := time.Now()
	o.Status = StatusShipped
	o.ShippedAt = &now
	o.UpdatedAt = now
	o.Record(OrderShipped{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		ShippedAt:  now,
	})
	return nil
}

// Deliver moves shipped → delivered and records OrderDelivered, which the
// allocator handler turns into fulfilled reservations and physical exits.
func (o *Order) Deliver() error {
	if !o.CanTransitionTo(StatusDelivered) {
		return o.transitionError(StatusDelivered)
	}
	now := time.Now()
	o.Status = StatusDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now
	o.Record(OrderDelivered{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		DeliveredAt: now,
	})
	return nil
}

// Invoice moves delivered → invoiced, the happy-path terminal state.
func (o *Order) Invoice() error {
	if !o.CanTransitionTo(StatusInvoiced) {
		return o.transitionError(StatusInvoiced)
	}
	now := time.Now()
	o.Status = StatusInvoiced
	o.InvoicedAt = &now
	o.UpdatedAt = now
	o.Record(OrderInvoiced{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Total:      o.Total(),
		InvoicedAt: now,
	})
	return nil
}

// Archive soft-archives a terminal order. Confirmed orders are never
// hard-deleted; drafts may be, which the command layer handles separately.
func (o *Order) Archive() error {
	if o.ArchivedAt != nil {
		return ErrOrderArchived
	}
	if o.Status != StatusInvoiced && o.Status != StatusCanceled {
		return ErrNotArchivable
	}
	now := time.Now()
	o.ArchivedAt = &now
	o.UpdatedAt = now
	return nil
}

// Clone returns a deep copy without any pending recorded events.
func (o *Order) Clone() *Order {
	c := *o
	c.Recorder = event.Recorder{}
	c.Lines = make([]Line, len(o.Lines))
	copy(c.Lines, o.Lines)
	copyTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	c.ConfirmedAt = copyTime(o.ConfirmedAt)
	c.ReadyAt = copyTime(o.ReadyAt)
	c.ShippedAt = copyTime(o.ShippedAt)
	c.DeliveredAt = copyTime(o.DeliveredAt)
	c.InvoicedAt = copyTime(o.InvoicedAt)
	c.CanceledAt = copyTime(o.CanceledAt)
	c.ArchivedAt = copyTime(o.ArchivedAt)
	return &c
}

// Filter narrows order listings.
type Filter struct {
	Status          *Status
	CustomerID      *uuid.UUID
	IncludeArchived bool
}

// Store is the transaction-scoped persistence contract for orders.
type Store interface {
	InsertOrder(ctx context.Context, o *Order) error
	// UpdateOrder persists the aggregate and bumps Version; it fails when
	// the stored version no longer matches the loaded one.
	UpdateOrder(ctx context.Context, o *Order) error
	// OrderForUpdate locks and returns the order with its lines.
	OrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	OrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, f Filter) ([]*Order, error)
	// DeleteDraftOrder hard-deletes a draft, the only state that permits it.
	DeleteDraftOrder(ctx context.Context, id uuid.UUID) error
}
