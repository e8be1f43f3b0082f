package stock

import (
	"context"

	"github.com/google/uuid"
)

// Store is the transaction-scoped persistence contract the ledger and
// allocator run against. Every method participates in the caller's
// transaction; the ...ForUpdate variants acquire exclusive row locks so
// concurrent allocations serialize on the items they compete for.
type Store interface {
	// ItemForUpdate locks and returns one item.
	ItemForUpdate(ctx context.Context, itemID uuid.UUID) (*Item, error)

	// ItemsForUpdateByProduct locks and returns every item holding the
	// product/variant, ordered by available quantity descending with
	// location id ascending as the tie-break. The ordering doubles as the
	// lock-acquisition order, which keeps competing allocations from
	// deadlocking on overlapping location sets.
	ItemsForUpdateByProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]*Item, error)

	// ItemForUpdateAt locks and returns the item at one location, or
	// ErrItemNotFound when no stock has ever moved in there.
	ItemForUpdateAt(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, locationID uuid.UUID) (*Item, error)

	InsertItem(ctx context.Context, item *Item) error
	UpdateItemQuantities(ctx context.Context, item *Item) error

	InsertMovement(ctx context.Context, m *Movement) error

	InsertReservation(ctx context.Context, r *Reservation) error
	UpdateReservation(ctx context.Context, r *Reservation) error
	// ReservationsForUpdate locks and returns every reservation of an order.
	ReservationsForUpdate(ctx context.Context, orderID uuid.UUID) ([]*Reservation, error)

	// TotalAvailable sums available quantity across all locations without
	// locking; used for fail-fast availability checks before allocation.
	TotalAvailable(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int, error)

	// Read-only accessors for the query side.
	ItemByID(ctx context.Context, itemID uuid.UUID) (*Item, error)
	ItemsByProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]*Item, error)
	MovementsByItem(ctx context.Context, itemID uuid.UUID) ([]*Movement, error)
	ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Reservation, error)
}
