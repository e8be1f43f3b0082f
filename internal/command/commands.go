package command

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order Commands
type CreateOrder struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	CreditCheck bool      `json:"credit_check"`
	Lines       []NewLine `json:"lines"`
}

// NewLine describes a line on a new order. UnitPrice, when present, is a
// caller-supplied price override; otherwise the pricer resolves it.
type NewLine struct {
	ProductID uuid.UUID        `json:"product_id"`
	VariantID *uuid.UUID       `json:"variant_id,omitempty"`
	Label     string           `json:"label"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type AddLine struct {
	OrderID   uuid.UUID        `json:"order_id"`
	ProductID uuid.UUID        `json:"product_id"`
	VariantID *uuid.UUID       `json:"variant_id,omitempty"`
	Label     string           `json:"label"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type RemoveLine struct {
	OrderID uuid.UUID `json:"order_id"`
	LineID  uuid.UUID `json:"line_id"`
}

type SetDiscount struct {
	OrderID  uuid.UUID       `json:"order_id"`
	Percent  decimal.Decimal `json:"percent"`
	Approved bool            `json:"approved"`
}

type ConfirmOrder struct {
	OrderID uuid.UUID `json:"order_id"`
	ActorID uuid.UUID `json:"actor_id"`
}

type CancelOrder struct {
	OrderID uuid.UUID `json:"order_id"`
	ActorID uuid.UUID `json:"actor_id"`
	Reason  string    `json:"reason"`
}

type StartPreparation struct {
	OrderID uuid.UUID `json:"order_id"`
}

type MarkReady struct {
	OrderID uuid.UUID `json:"order_id"`
}

type ShipOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

type DeliverOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

type InvoiceOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

// ArchiveOrder hides a terminal order from default listings. A draft has
// nothing worth keeping, so archiving one deletes it instead.
type ArchiveOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

// Stock Commands
type ReceiveStock struct {
	ProductID  uuid.UUID  `json:"product_id"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID uuid.UUID  `json:"location_id"`
	Quantity   int        `json:"quantity"`
	ReceiptID  uuid.UUID  `json:"receipt_id"`
	ActorID    uuid.UUID  `json:"actor_id"`
	Reason     string     `json:"reason"`
}

type WithdrawStock struct {
	ProductID  uuid.UUID  `json:"product_id"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID uuid.UUID  `json:"location_id"`
	Quantity   int        `json:"quantity"`
	ActorID    uuid.UUID  `json:"actor_id"`
	Reason     string     `json:"reason"`
}

type TransferStock struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	FromLocationID uuid.UUID  `json:"from_location_id"`
	ToLocationID   uuid.UUID  `json:"to_location_id"`
	Quantity       int        `json:"quantity"`
	ActorID        uuid.UUID  `json:"actor_id"`
	Reason         string     `json:"reason"`
}

type AdjustStock struct {
	ItemID   uuid.UUID `json:"item_id"`
	Delta    int       `json:"delta"`
	Override bool      `json:"override"`
	ActorID  uuid.UUID `json:"actor_id"`
	Reason   string    `json:"reason"`
}

// Location Commands
type CreateLocation struct {
	Kind     string     `json:"kind"`
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}
