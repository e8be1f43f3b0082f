package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/credit"
	"github.com/example/order-fulfillment/internal/domain/event"
	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
)

var (
	ErrCustomerRequired = errors.New("customer_id is required")
	ErrProductRequired  = errors.New("product_id is required")
	ErrLocationRequired = errors.New("location_id is required")
)

// Handler executes the write-side use cases. Every mutation runs inside a
// single store transaction; domain events raised by the aggregates are
// dispatched synchronously within that transaction, so stock allocation,
// delivery notes and outbox rows commit or roll back together with the
// state change that caused them.
type Handler struct {
	store             store.Store
	dispatcher        *event.Dispatcher[store.Tx]
	ledger            *stock.Ledger
	checker           credit.Checker
	pricer            credit.Pricer
	discountThreshold decimal.Decimal
	logger            *logrus.Logger
}

func NewHandler(
	st store.Store,
	dispatcher *event.Dispatcher[store.Tx],
	ledger *stock.Ledger,
	checker credit.Checker,
	pricer credit.Pricer,
	discountThreshold decimal.Decimal,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		store:             st,
		dispatcher:        dispatcher,
		ledger:            ledger,
		checker:           checker,
		pricer:            pricer,
		discountThreshold: discountThreshold,
		logger:            logger,
	}
}

// transition loads the order under lock, applies fn and persists the
// result, dispatching whatever events fn recorded. Shared by every
// lifecycle use case that has no guards beyond the aggregate's own.
func (h *Handler) transition(ctx context.Context, orderID uuid.UUID, fn func(o *order.Order) error) (*order.Order, error) {
	var out *order.Order
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		if err := h.dispatcher.Dispatch(ctx, tx, o.PullEvents()...); err != nil {
			return err
		}
		if err := tx.Orders().UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// linePrice resolves a line's unit price: an explicit override wins,
// otherwise the pricer is asked.
func (h *Handler) linePrice(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}
	return h.pricer.PriceLine(ctx, productID, variantID)
}

// CreateOrder opens a new draft order, pricing any initial lines.
func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	if cmd.CustomerID == uuid.Nil {
		return nil, ErrCustomerRequired
	}

	o := order.New(cmd.CustomerID, cmd.CreditCheck)
	for _, l := range cmd.Lines {
		if l.ProductID == uuid.Nil {
			return nil, ErrProductRequired
		}
		price, err := h.linePrice(ctx, l.ProductID, l.VariantID, l.UnitPrice)
		if err != nil {
			return nil, err
		}
		if _, err := o.AddLine(l.ProductID, l.VariantID, l.Label, l.Quantity, price); err != nil {
			return nil, err
		}
	}

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Orders().InsertOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// AddLine prices and appends a line to a draft order.
func (h *Handler) AddLine(ctx context.Context, cmd AddLine) (*order.Order, error) {
	if cmd.ProductID == uuid.Nil {
		return nil, ErrProductRequired
	}
	price, err := h.linePrice(ctx, cmd.ProductID, cmd.VariantID, cmd.UnitPrice)
	if err != nil {
		return nil, err
	}
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		_, err := o.AddLine(cmd.ProductID, cmd.VariantID, cmd.Label, cmd.Quantity, price)
		return err
	})
}

// RemoveLine drops a line from a draft order.
func (h *Handler) RemoveLine(ctx context.Context, cmd RemoveLine) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.RemoveLine(cmd.LineID)
	})
}

// SetDiscount sets the order-level discount on a draft order.
func (h *Handler) SetDiscount(ctx context.Context, cmd SetDiscount) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.SetDiscount(cmd.Percent, cmd.Approved)
	})
}

// ConfirmOrder runs the full confirmation sequence in one transaction:
// the aggregate's own guards (transition, lines, discount approval), then
// the credit check, then a fail-fast availability check, and finally the
// dispatch that allocates stock, requests the pick note and records the
// outbox row.
func (h *Handler) ConfirmOrder(ctx context.Context, cmd ConfirmOrder) (*order.Order, error) {
	var confirmed *order.Order
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().OrderForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}

		// 1. Transition and order-level guards (emits OrderConfirmed)
		if err := o.Confirm(cmd.ActorID, h.discountThreshold); err != nil {
			return err
		}

		// 2. Credit check, only for customers flagged for it
		if o.CreditCheck {
			ok, err := h.checker.CheckCredit(ctx, o.CustomerID, o.Total())
			if err != nil {
				return fmt.Errorf("credit check: %w", err)
			}
			if !ok {
				return order.ErrCreditExceeded
			}
		}

		// 3. Availability pre-check without locks. The allocator re-checks
		// under FOR UPDATE; this one fails fast before any stock row is
		// touched.
		for _, l := range o.Lines {
			available, err := tx.Stock().TotalAvailable(ctx, l.ProductID, l.VariantID)
			if err != nil {
				return err
			}
			if available < l.Quantity {
				return &stock.ShortfallError{
					LineID:    l.ID,
					ProductID: l.ProductID,
					Requested: l.Quantity,
					Available: available,
				}
			}
		}

		// 4. Allocation, delivery note and outbox all hang off this dispatch
		if err := h.dispatcher.Dispatch(ctx, tx, o.PullEvents()...); err != nil {
			return err
		}

		if err := tx.Orders().UpdateOrder(ctx, o); err != nil {
			return err
		}
		confirmed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": confirmed.ID,
		"total":    confirmed.Total(),
	}).Info("[Command] order confirmed")
	return confirmed, nil
}

// CancelOrder cancels an order; the event handlers release any open
// reservations in the same transaction.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	o, err := h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.Cancel(cmd.ActorID, cmd.Reason)
	})
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": o.ID,
		"reason":   cmd.Reason,
	}).Info("[Command] order canceled")
	return o, nil
}

// StartPreparation moves a confirmed order onto the warehouse floor.
func (h *Handler) StartPreparation(ctx context.Context, cmd StartPreparation) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.StartPreparation()
	})
}

// MarkReady flags the order as picked and packed; the delivery note
// request goes out through the same transaction.
func (h *Handler) MarkReady(ctx context.Context, cmd MarkReady) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.MarkReady()
	})
}

// ShipOrder hands the order to the carrier.
func (h *Handler) ShipOrder(ctx context.Context, cmd ShipOrder) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.Ship()
	})
}

// DeliverOrder records delivery; the event handlers consume the order's
// reservations, deducting physical stock in the same transaction.
func (h *Handler) DeliverOrder(ctx context.Context, cmd DeliverOrder) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.Deliver()
	})
}

// InvoiceOrder closes out a delivered order.
func (h *Handler) InvoiceOrder(ctx context.Context, cmd InvoiceOrder) (*order.Order, error) {
	return h.transition(ctx, cmd.OrderID, func(o *order.Order) error {
		return o.Invoice()
	})
}

// ArchiveOrder hides a finished order from default listings. Drafts carry
// no history worth keeping and are deleted outright.
func (h *Handler) ArchiveOrder(ctx context.Context, cmd ArchiveOrder) error {
	return h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().OrderForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if o.Status == order.StatusDraft {
			return tx.Orders().DeleteDraftOrder(ctx, cmd.OrderID)
		}
		if err := o.Archive(); err != nil {
			return err
		}
		return tx.Orders().UpdateOrder(ctx, o)
	})
}

// ReceiveStock books goods into a location, creating the item on first
// receipt.
func (h *Handler) ReceiveStock(ctx context.Context, cmd ReceiveStock) (*stock.Item, error) {
	if cmd.ProductID == uuid.Nil {
		return nil, ErrProductRequired
	}
	if cmd.LocationID == uuid.Nil {
		return nil, ErrLocationRequired
	}
	if cmd.ReceiptID == uuid.Nil {
		cmd.ReceiptID = uuid.New()
	}
	ref := stock.Ref{Kind: stock.RefReceipt, ID: cmd.ReceiptID, ActorID: cmd.ActorID, Reason: cmd.Reason}

	var item *stock.Item
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Locations().LocationByID(ctx, cmd.LocationID); err != nil {
			return fmt.Errorf("location %s: %w", cmd.LocationID, err)
		}
		it, err := h.ledger.Enter(ctx, tx.Stock(), cmd.ProductID, cmd.VariantID, cmd.LocationID, cmd.Quantity, ref)
		if err != nil {
			return err
		}
		item = it
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"product_id":  cmd.ProductID,
		"location_id": cmd.LocationID,
		"quantity":    cmd.Quantity,
	}).Info("[Command] stock received")
	return item, nil
}

// WithdrawStock books unreserved goods out of a location.
func (h *Handler) WithdrawStock(ctx context.Context, cmd WithdrawStock) (*stock.Item, error) {
	if cmd.ProductID == uuid.Nil {
		return nil, ErrProductRequired
	}
	if cmd.LocationID == uuid.Nil {
		return nil, ErrLocationRequired
	}
	ref := stock.Ref{Kind: stock.RefManual, ID: uuid.New(), ActorID: cmd.ActorID, Reason: cmd.Reason}

	var item *stock.Item
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		it, err := h.ledger.Exit(ctx, tx.Stock(), cmd.ProductID, cmd.VariantID, cmd.LocationID, cmd.Quantity, ref)
		if err != nil {
			return err
		}
		item = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// TransferStock moves unreserved goods between two locations. Both
// movements share one transfer reference so the pair can be traced.
func (h *Handler) TransferStock(ctx context.Context, cmd TransferStock) error {
	if cmd.ProductID == uuid.Nil {
		return ErrProductRequired
	}
	if cmd.FromLocationID == uuid.Nil || cmd.ToLocationID == uuid.Nil {
		return ErrLocationRequired
	}
	ref := stock.Ref{Kind: stock.RefTransfer, ID: uuid.New(), ActorID: cmd.ActorID, Reason: cmd.Reason}

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Locations().LocationByID(ctx, cmd.ToLocationID); err != nil {
			return fmt.Errorf("location %s: %w", cmd.ToLocationID, err)
		}
		return h.ledger.Transfer(ctx, tx.Stock(), cmd.ProductID, cmd.VariantID, cmd.FromLocationID, cmd.ToLocationID, cmd.Quantity, ref)
	})
	if err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"product_id": cmd.ProductID,
		"from":       cmd.FromLocationID,
		"to":         cmd.ToLocationID,
		"quantity":   cmd.Quantity,
	}).Info("[Command] stock transferred")
	return nil
}

// AdjustStock corrects an item's physical quantity after a count.
func (h *Handler) AdjustStock(ctx context.Context, cmd AdjustStock) (*stock.Item, error) {
	ref := stock.Ref{Kind: stock.RefManual, ID: uuid.New(), ActorID: cmd.ActorID, Reason: cmd.Reason}

	var item *stock.Item
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		it, err := h.ledger.Adjust(ctx, tx.Stock(), cmd.ItemID, cmd.Delta, cmd.Override, ref)
		if err != nil {
			return err
		}
		item = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateLocation adds a node to the location hierarchy after checking the
// parent's kind matches.
func (h *Handler) CreateLocation(ctx context.Context, cmd CreateLocation) (*location.Location, error) {
	loc, err := location.New(location.Kind(cmd.Kind), cmd.Code, cmd.Name, cmd.ParentID)
	if err != nil {
		return nil, err
	}

	err = h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if loc.ParentID != nil {
			parent, err := tx.Locations().LocationByID(ctx, *loc.ParentID)
			if err != nil {
				return fmt.Errorf("parent location %s: %w", *loc.ParentID, err)
			}
			want, _ := location.ParentKindFor(loc.Kind)
			if parent.Kind != want {
				return location.ErrInvalidParent
			}
		}
		return tx.Locations().InsertLocation(ctx, loc)
	})
	if err != nil {
		return nil, err
	}
	return loc, nil
}
