package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientStockAcrossLocations is reported when the sum of available
// stock over every location cannot cover a requested line.
var ErrInsufficientStockAcrossLocations = errors.New("insufficient stock across locations")

// ShortfallError identifies the line that could not be covered. It matches
// ErrInsufficientStockAcrossLocations under errors.Is.
type ShortfallError struct {
	LineID    uuid.UUID
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock across locations for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *ShortfallError) Is(target error) bool {
	return target == ErrInsufficientStockAcrossLocations
}

// LineRequest is one order line the allocator must cover.
type LineRequest struct {
	LineID    uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Allocator spreads order lines over stock locations. A line may be covered
// by several locations; allocation prefers the location with the most
// available stock so lines fragment across as few locations as possible.
type Allocator struct {
	ledger *Ledger
}

func NewAllocator(ledger *Ledger) *Allocator {
	return &Allocator{ledger: ledger}
}

// AllocateOrder reserves stock for every line or for none. Each line locks
// its full location set up front, takes from the fullest location first
// (location id breaks ties) and walks down until the line is covered. Any
// shortfall returns a ShortfallError; the caller must abort its transaction
// so reservations already written for earlier lines roll back with it.
func (a *Allocator) AllocateOrder(ctx context.Context, st Store, orderID uuid.UUID, lines []LineRequest, ref Ref) ([]*Reservation, error) {
	reservations := make([]*Reservation, 0, len(lines))

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}

		items, err := st.ItemsForUpdateByProduct(ctx, line.ProductID, line.VariantID)
		if err != nil {
			return nil, err
		}

		available := 0
		for _, item := range items {
			available += item.Available()
		}
		if available < line.Quantity {
			return nil, &ShortfallError{
				LineID:    line.LineID,
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			}
		}

		remaining := line.Quantity
		for _, item := range items {
			if remaining == 0 {
				break
			}
			take := item.Available()
			if take == 0 {
				continue
			}
			if take > remaining {
				take = remaining
			}
			if err := a.ledger.ReserveItem(ctx, st, item, take, ref); err != nil {
				return nil, err
			}
			r := NewReservation(orderID, line.LineID, item.ID, take)
			if err := st.InsertReservation(ctx, r); err != nil {
				return nil, err
			}
			reservations = append(reservations, r)
			remaining -= take
		}
	}
	return reservations, nil
}

// ReleaseOrder returns every active reservation of the order to available
// stock. Reservations already released or fulfilled are left untouched, so
// releasing twice is harmless.
func (a *Allocator) ReleaseOrder(ctx context.Context, st Store, orderID uuid.UUID, ref Ref) (int, error) {
	reservations, err := st.ReservationsForUpdate(ctx, orderID)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range reservations {
		if r.Status != ReservationReserved {
			continue
		}
		if _, err := a.ledger.Release(ctx, st, r.ItemID, r.Quantity, ref); err != nil {
			return released, err
		}
		if err := r.Release(); err != nil {
			return released, err
		}
		if err := st.UpdateReservation(ctx, r); err != nil {
			return released, err
		}
		released += r.Quantity
	}
	return released, nil
}

// FulfillOrder ships every active reservation of the order: physical stock
// leaves the locations the reservations were placed against.
func (a *Allocator) FulfillOrder(ctx context.Context, st Store, orderID uuid.UUID, ref Ref) (int, error) {
	reservations, err := st.ReservationsForUpdate(ctx, orderID)
	if err != nil {
		return 0, err
	}

	fulfilled := 0
	for _, r := range reservations {
		if r.Status != ReservationReserved {
			continue
		}
		if _, err := a.ledger.Fulfill(ctx, st, r.ItemID, r.Quantity, ref); err != nil {
			return fulfilled, err
		}
		if err := r.Fulfill(); err != nil {
			return fulfilled, err
		}
		if err := st.UpdateReservation(ctx, r); err != nil {
			return fulfilled, err
		}
		fulfilled += r.Quantity
	}
	return fulfilled, nil
}
