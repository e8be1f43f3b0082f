package query

import (
	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/location"
)

// StockLevel is the per-location slice of a product's stock.
type StockLevel struct {
	ItemID     uuid.UUID `json:"item_id"`
	LocationID uuid.UUID `json:"location_id"`
	Physical   int       `json:"physical_quantity"`
	Reserved   int       `json:"reserved_quantity"`
	Available  int       `json:"available_quantity"`
}

// StockLevels aggregates one product (or variant) across every location
// that has ever held it.
type StockLevels struct {
	ProductID      uuid.UUID    `json:"product_id"`
	VariantID      *uuid.UUID   `json:"variant_id,omitempty"`
	Locations      []StockLevel `json:"locations"`
	TotalPhysical  int          `json:"total_physical"`
	TotalReserved  int          `json:"total_reserved"`
	TotalAvailable int          `json:"total_available"`
}

// LocationNode is a location with its direct children, for browsing the
// warehouse/zone/bin tree one level at a time.
type LocationNode struct {
	*location.Location
	Children []*location.Location `json:"children"`
}
