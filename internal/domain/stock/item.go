package stock

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOverRelease         = errors.New("release exceeds reserved quantity")
	ErrNegativePhysical    = errors.New("physical quantity cannot go negative")
	ErrAdjustBelowReserved = errors.New("adjustment would drop physical below reserved")
	ErrItemNotFound        = errors.New("stock item not found")
)

// Item tracks the physical and reserved quantity of one product (and
// optional variant) at one location. Quantities move only through the
// mutators below so the reserved <= physical invariant cannot be bypassed.
//
// Items are created lazily by the first movement into a location and are
// never deleted; a zero-quantity item stays behind as the anchor for its
// movement history.
type Item struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"product_id"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID uuid.UUID  `json:"location_id"`
	Physical   int        `json:"physical_quantity"`
	Reserved   int        `json:"reserved_quantity"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func NewItem(productID uuid.UUID, variantID *uuid.UUID, locationID uuid.UUID) *Item {
	now := time.Now()
	return &Item{
		ID:         uuid.New(),
		ProductID:  productID,
		VariantID:  variantID,
		LocationID: locationID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Available is the quantity that can still be promised to new orders.
func (i *Item) Available() int {
	return i.Physical - i.Reserved
}

// Reserve places a soft hold on qty units. Fails with ErrInsufficientStock
// when the available quantity is smaller than qty.
func (i *Item) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i.Available() < qty {
		return ErrInsufficientStock
	}
	i.Reserved += qty
	i.UpdatedAt = time.Now()
	return nil
}

// Release gives qty reserved units back to the available pool.
func (i *Item) Release(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > i.Reserved {
		return ErrOverRelease
	}
	i.Reserved -= qty
	i.UpdatedAt = time.Now()
	return nil
}

// Fulfill converts qty reserved units into a physical exit, used when a
// delivered order consumes its holds.
func (i *Item) Fulfill(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > i.Reserved {
		return ErrOverRelease
	}
	i.Physical -= qty
	i.Reserved -= qty
	i.UpdatedAt = time.Now()
	return nil
}

// Receive adds qty physical units (goods entering the location).
func (i *Item) Receive(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	i.Physical += qty
	i.UpdatedAt = time.Now()
	return nil
}

// Withdraw removes qty unreserved physical units (goods leaving the
// location outside an order, e.g. a transfer). Reserved stock cannot be
// withdrawn.
func (i *Item) Withdraw(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i.Available() < qty {
		return ErrInsufficientStock
	}
	i.Physical -= qty
	i.UpdatedAt = time.Now()
	return nil
}

// Adjust applies a signed correction to the physical quantity. Without the
// override flag the result may not drop below the reserved quantity; with
// it, authorized corrections may leave the item over-reserved, but never
// with negative physical stock.
func (i *Item) Adjust(delta int, override bool) error {
	result := i.Physical + delta
	if result < 0 {
		return ErrNegativePhysical
	}
	if !override && result < i.Reserved {
		return ErrAdjustBelowReserved
	}
	i.Physical = result
	i.UpdatedAt = time.Now()
	return nil
}

// Clone returns a deep copy, used by the in-memory store's transaction
// snapshots.
func (i *Item) Clone() *Item {
	c := *i
	if i.VariantID != nil {
		v := *i.VariantID
		c.VariantID = &v
	}
	return &c
}
