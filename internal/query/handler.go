package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
)

// Handler serves the read side. Every query runs inside its own read
// transaction so multi-row answers (stock levels, order with
// reservations) come from one consistent snapshot.
type Handler struct {
	store  store.Store
	outbox outbox.Reader
}

func NewHandler(st store.Store, ob outbox.Reader) *Handler {
	return &Handler{store: st, outbox: ob}
}

// Orders

func (h *Handler) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o *order.Order
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.Orders().OrderByID(ctx, id)
		return err
	})
	return o, err
}

func (h *Handler) ListOrders(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	var orders []*order.Order
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		orders, err = tx.Orders().ListOrders(ctx, f)
		return err
	})
	return orders, err
}

// GetOrderReservations returns the reservations held for an order. The
// order is looked up first so an unknown id reads as not-found rather
// than an empty list.
func (h *Handler) GetOrderReservations(ctx context.Context, orderID uuid.UUID) ([]*stock.Reservation, error) {
	var reservations []*stock.Reservation
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Orders().OrderByID(ctx, orderID); err != nil {
			return err
		}
		var err error
		reservations, err = tx.Stock().ReservationsByOrder(ctx, orderID)
		return err
	})
	return reservations, err
}

// Stock

// GetStockLevels returns the per-location breakdown and totals for a
// product or variant. A product nothing has ever moved in for yields
// zero totals and no locations, not an error.
func (h *Handler) GetStockLevels(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*StockLevels, error) {
	levels := &StockLevels{ProductID: productID, VariantID: variantID, Locations: []StockLevel{}}
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		items, err := tx.Stock().ItemsByProduct(ctx, productID, variantID)
		if err != nil {
			return err
		}
		for _, item := range items {
			levels.Locations = append(levels.Locations, StockLevel{
				ItemID:     item.ID,
				LocationID: item.LocationID,
				Physical:   item.Physical,
				Reserved:   item.Reserved,
				Available:  item.Available(),
			})
			levels.TotalPhysical += item.Physical
			levels.TotalReserved += item.Reserved
			levels.TotalAvailable += item.Available()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}

// GetItemMovements returns an item's movement history, newest first. The
// item is looked up first so an unknown id reads as not-found.
func (h *Handler) GetItemMovements(ctx context.Context, itemID uuid.UUID) ([]*stock.Movement, error) {
	var movements []*stock.Movement
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Stock().ItemByID(ctx, itemID); err != nil {
			return err
		}
		var err error
		movements, err = tx.Stock().MovementsByItem(ctx, itemID)
		return err
	})
	return movements, err
}

// Locations

func (h *Handler) GetLocation(ctx context.Context, id uuid.UUID) (*LocationNode, error) {
	node := &LocationNode{}
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		loc, err := tx.Locations().LocationByID(ctx, id)
		if err != nil {
			return err
		}
		children, err := tx.Locations().LocationsByParent(ctx, id)
		if err != nil {
			return err
		}
		node.Location = loc
		node.Children = children
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (h *Handler) ListLocations(ctx context.Context) ([]*location.Location, error) {
	var locations []*location.Location
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		locations, err = tx.Locations().AllLocations(ctx)
		return err
	})
	return locations, err
}

// Outbox

func (h *Handler) GetOutboxStats(ctx context.Context) (outbox.Stats, error) {
	return h.outbox.OutboxStats(ctx)
}

func (h *Handler) ListDeadEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	return h.outbox.DeadEvents(ctx, limit)
}
