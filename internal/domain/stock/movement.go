package stock

import (
	"time"

	"github.com/google/uuid"
)

// MovementKind classifies a stock movement. The Quantity on the movement is
// the signed delta applied to the counter the kind targets: entry,
// transfer_in and positive adjustments raise the physical count; exit,
// transfer_out, fulfill and negative adjustments lower it; reserve and
// release move the reserved count up and down without touching physical.
type MovementKind string

const (
	MovementEntry       MovementKind = "entry"
	MovementExit        MovementKind = "exit"
	MovementTransferIn  MovementKind = "transfer_in"
	MovementTransferOut MovementKind = "transfer_out"
	MovementAdjustment  MovementKind = "adjustment"
	MovementReserve     MovementKind = "reserve"
	MovementRelease     MovementKind = "release"
	MovementFulfill     MovementKind = "fulfill"
)

// RefKind names the document a movement originates from.
type RefKind string

const (
	RefOrder    RefKind = "order"
	RefReceipt  RefKind = "receipt"
	RefTransfer RefKind = "transfer"
	RefManual   RefKind = "manual"
)

// Ref carries the provenance every ledger mutation must record: who acted,
// why, and which document triggered it.
type Ref struct {
	Kind    RefKind
	ID      uuid.UUID
	ActorID uuid.UUID
	Reason  string
}

// Movement is the append-only audit record of one stock change. Movements
// are written in the same transaction as the quantity change they describe
// and are never updated or deleted.
type Movement struct {
	ID         uuid.UUID    `json:"id"`
	ItemID     uuid.UUID    `json:"item_id"`
	Kind       MovementKind `json:"kind"`
	Quantity   int          `json:"quantity"`
	Reason     string       `json:"reason,omitempty"`
	ActorID    uuid.UUID    `json:"actor_id"`
	RefKind    RefKind      `json:"ref_kind"`
	RefID      uuid.UUID    `json:"ref_id"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func NewMovement(itemID uuid.UUID, kind MovementKind, qty int, ref Ref) *Movement {
	return &Movement{
		ID:         uuid.New(),
		ItemID:     itemID,
		Kind:       kind,
		Quantity:   qty,
		Reason:     ref.Reason,
		ActorID:    ref.ActorID,
		RefKind:    ref.Kind,
		RefID:      ref.ID,
		OccurredAt: time.Now(),
	}
}

// Clone returns a copy for in-memory snapshots.
func (m *Movement) Clone() *Movement {
	c := *m
	return &c
}
