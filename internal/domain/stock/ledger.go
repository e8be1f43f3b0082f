package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Ledger applies stock operations against a Store. Every quantity change
// goes through an Item mutator (which enforces the quantity invariants) and
// leaves exactly one Movement per affected item, so the movement history
// always replays to the current quantities.
type Ledger struct {
	logger *logrus.Logger
}

func NewLedger(logger *logrus.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// Reserve locks the item, raises its reserved quantity and records a
// reserve movement. The caller owns the surrounding transaction.
func (l *Ledger) Reserve(ctx context.Context, st Store, itemID uuid.UUID, qty int, ref Ref) (*Item, error) {
	item, err := st.ItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return item, l.ReserveItem(ctx, st, item, qty, ref)
}

// ReserveItem reserves qty on an item the caller already holds a row lock
// on. The allocator uses this form after locking a whole location set.
func (l *Ledger) ReserveItem(ctx context.Context, st Store, item *Item, qty int, ref Ref) error {
	if err := item.Reserve(qty); err != nil {
		return err
	}
	if err := st.UpdateItemQuantities(ctx, item); err != nil {
		return err
	}
	return st.InsertMovement(ctx, NewMovement(item.ID, MovementReserve, qty, ref))
}

// Release locks the item, lowers its reserved quantity and records a
// release movement. Releasing more than is reserved fails with
// ErrOverRelease and must abort the caller's transaction.
func (l *Ledger) Release(ctx context.Context, st Store, itemID uuid.UUID, qty int, ref Ref) (*Item, error) {
	item, err := st.ItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return item, l.ReleaseItem(ctx, st, item, qty, ref)
}

func (l *Ledger) ReleaseItem(ctx context.Context, st Store, item *Item, qty int, ref Ref) error {
	if err := item.Release(qty); err != nil {
		return err
	}
	if err := st.UpdateItemQuantities(ctx, item); err != nil {
		return err
	}
	return st.InsertMovement(ctx, NewMovement(item.ID, MovementRelease, -qty, ref))
}

// Fulfill converts reserved quantity into an outbound shipment: physical
// and reserved drop together and a fulfill movement records the exit.
func (l *Ledger) Fulfill(ctx context.Context, st Store, itemID uuid.UUID, qty int, ref Ref) (*Item, error) {
	item, err := st.ItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return item, l.FulfillItem(ctx, st, item, qty, ref)
}

func (l *Ledger) FulfillItem(ctx context.Context, st Store, item *Item, qty int, ref Ref) error {
	if err := item.Fulfill(qty); err != nil {
		return err
	}
	if err := st.UpdateItemQuantities(ctx, item); err != nil {
		return err
	}
	return st.InsertMovement(ctx, NewMovement(item.ID, MovementFulfill, -qty, ref))
}

// Enter receives goods into a location, creating the item row on first
// receipt. Returns the item after the entry movement is recorded.
func (l *Ledger) Enter(ctx context.Context, st Store, productID uuid.UUID, variantID *uuid.UUID, locationID uuid.UUID, qty int, ref Ref) (*Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	item, err := st.ItemForUpdateAt(ctx, productID, variantID, locationID)
	switch {
	case err == nil:
		if err := item.Receive(qty); err != nil {
			return nil, err
		}
		if err := st.UpdateItemQuantities(ctx, item); err != nil {
			return nil, err
		}
	case err == ErrItemNotFound:
		item = NewItem(productID, variantID, locationID)
		if err := item.Receive(qty); err != nil {
			return nil, err
		}
		if err := st.InsertItem(ctx, item); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return item, st.InsertMovement(ctx, NewMovement(item.ID, MovementEntry, qty, ref))
}

// Exit withdraws unreserved goods from a location.
func (l *Ledger) Exit(ctx context.Context, st Store, productID uuid.UUID, variantID *uuid.UUID, locationID uuid.UUID, qty int, ref Ref) (*Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	item, err := st.ItemForUpdateAt(ctx, productID, variantID, locationID)
	if err != nil {
		return nil, err
	}
	if err := item.Withdraw(qty); err != nil {
		return nil, err
	}
	if err := st.UpdateItemQuantities(ctx, item); err != nil {
		return nil, err
	}
	return item, st.InsertMovement(ctx, NewMovement(item.ID, MovementExit, -qty, ref))
}

// Transfer moves unreserved goods between two locations as one atomic
// pair of movements. Locks are taken in (source, destination) order by the
// two lookups; both locations belong to the same transaction so a crash
// between the legs rolls both back.
func (l *Ledger) Transfer(ctx context.Context, st Store, productID uuid.UUID, variantID *uuid.UUID, fromLocationID, toLocationID uuid.UUID, qty int, ref Ref) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if fromLocationID == toLocationID {
		return fmt.Errorf("transfer: source and destination are the same location")
	}

	src, err := st.ItemForUpdateAt(ctx, productID, variantID, fromLocationID)
	if err != nil {
		return err
	}
	if err := src.Withdraw(qty); err != nil {
		return err
	}
	if err := st.UpdateItemQuantities(ctx, src); err != nil {
		return err
	}
	if err := st.InsertMovement(ctx, NewMovement(src.ID, MovementTransferOut, -qty, ref)); err != nil {
		return err
	}

	dst, err := st.ItemForUpdateAt(ctx, productID, variantID, toLocationID)
	switch {
	case err == nil:
		if err := dst.Receive(qty); err != nil {
			return err
		}
		if err := st.UpdateItemQuantities(ctx, dst); err != nil {
			return err
		}
	case err == ErrItemNotFound:
		dst = NewItem(productID, variantID, toLocationID)
		if err := dst.Receive(qty); err != nil {
			return err
		}
		if err := st.InsertItem(ctx, dst); err != nil {
			return err
		}
	default:
		return err
	}
	return st.InsertMovement(ctx, NewMovement(dst.ID, MovementTransferIn, qty, ref))
}

// Adjust corrects the physical quantity by a signed delta, for cycle counts
// and damage write-offs. Without override the result must still cover the
// reserved quantity; with override it may dip below reserved (never below
// zero), which is logged because it leaves reservations that can no longer
// all be fulfilled from this location.
func (l *Ledger) Adjust(ctx context.Context, st Store, itemID uuid.UUID, delta int, override bool, ref Ref) (*Item, error) {
	if delta == 0 {
		return nil, ErrInvalidQuantity
	}
	item, err := st.ItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := item.Adjust(delta, override); err != nil {
		return nil, err
	}
	if override && item.Physical < item.Reserved {
		l.logger.WithFields(logrus.Fields{
			"item_id":  item.ID,
			"physical": item.Physical,
			"reserved": item.Reserved,
			"actor_id": ref.ActorID,
		}).Warn("[StockLedger] adjustment forced physical below reserved")
	}
	if err := st.UpdateItemQuantities(ctx, item); err != nil {
		return nil, err
	}
	return item, st.InsertMovement(ctx, NewMovement(item.ID, MovementAdjustment, delta, ref))
}
