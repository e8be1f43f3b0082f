package stock

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrReservationClosed   = errors.New("reservation is not in reserved status")
	ErrReservationNotFound = errors.New("reservation not found")
)

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation links one order line to the stock item backing part (or all)
// of its quantity. A line split across locations produces one row per item.
// Reservations transition to released on cancellation or fulfilled on
// delivery and are kept forever for traceability.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	OrderID   uuid.UUID         `json:"order_id"`
	LineID    uuid.UUID         `json:"line_id"`
	ItemID    uuid.UUID         `json:"item_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewReservation(orderID, lineID, itemID uuid.UUID, qty int) *Reservation {
	now := time.Now()
	return &Reservation{
		ID:        uuid.New(),
		OrderID:   orderID,
		LineID:    lineID,
		ItemID:    itemID,
		Quantity:  qty,
		Status:    ReservationReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Release marks the reservation released. Only open reservations can move.
func (r *Reservation) Release() error {
	if r.Status != ReservationReserved {
		return ErrReservationClosed
	}
	r.Status = ReservationReleased
	r.UpdatedAt = time.Now()
	return nil
}

// Fulfill marks the reservation consumed by a delivery.
func (r *Reservation) Fulfill() error {
	if r.Status != ReservationReserved {
		return ErrReservationClosed
	}
	r.Status = ReservationFulfilled
	r.UpdatedAt = time.Now()
	return nil
}

// Clone returns a copy for in-memory snapshots.
func (r *Reservation) Clone() *Reservation {
	c := *r
	return &c
}
