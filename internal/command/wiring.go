package command

import (
	"context"
	"fmt"

	"github.com/example/order-fulfillment/internal/deliverynote"
	"github.com/example/order-fulfillment/internal/domain/event"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
)

// NewDispatcher wires the in-transaction event handlers. Registration
// order matters: stock effects run first so later handlers observe the
// reservations they create, the delivery-note mapper runs second, and the
// outbox recorder runs last so every externally visible event leaves the
// transaction exactly once, after all its side effects.
func NewDispatcher(allocator *stock.Allocator, notes *deliverynote.Handler) *event.Dispatcher[store.Tx] {
	d := event.NewDispatcher[store.Tx]()

	d.RegisterFunc(order.EventOrderConfirmed, func(ctx context.Context, tx store.Tx, e event.Event) error {
		evt, ok := e.(order.OrderConfirmed)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e, e.EventName())
		}
		lines := make([]stock.LineRequest, 0, len(evt.Lines))
		for _, l := range evt.Lines {
			lines = append(lines, stock.LineRequest{
				LineID:    l.LineID,
				ProductID: l.ProductID,
				VariantID: l.VariantID,
				Quantity:  l.Quantity,
			})
		}
		ref := stock.Ref{Kind: stock.RefOrder, ID: evt.OrderID, ActorID: evt.ActorID, Reason: "order confirmed"}
		_, err := allocator.AllocateOrder(ctx, tx.Stock(), evt.OrderID, lines, ref)
		return err
	})

	d.RegisterFunc(order.EventOrderCanceled, func(ctx context.Context, tx store.Tx, e event.Event) error {
		evt, ok := e.(order.OrderCanceled)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e, e.EventName())
		}
		ref := stock.Ref{Kind: stock.RefOrder, ID: evt.OrderID, ActorID: evt.ActorID, Reason: "order canceled"}
		_, err := allocator.ReleaseOrder(ctx, tx.Stock(), evt.OrderID, ref)
		return err
	})

	d.RegisterFunc(order.EventOrderDelivered, func(ctx context.Context, tx store.Tx, e event.Event) error {
		evt, ok := e.(order.OrderDelivered)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", e, e.EventName())
		}
		ref := stock.Ref{Kind: stock.RefOrder, ID: evt.OrderID, Reason: "order delivered"}
		_, err := allocator.FulfillOrder(ctx, tx.Stock(), evt.OrderID, ref)
		return err
	})

	// Delivery notes read the reservations the allocator just wrote.
	d.Register(order.EventOrderConfirmed, notes)
	d.Register(order.EventOrderReady, notes)

	recorder := event.HandlerFunc[store.Tx](func(ctx context.Context, tx store.Tx, e event.Event) error {
		return outbox.Enqueue(ctx, tx.Outbox(), e)
	})
	for _, name := range []string{
		order.EventOrderConfirmed,
		order.EventOrderCanceled,
		order.EventOrderReady,
		order.EventOrderShipped,
		order.EventOrderDelivered,
		order.EventOrderInvoiced,
	} {
		d.Register(name, recorder)
	}

	return d
}
