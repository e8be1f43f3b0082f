package credit

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrUnpriced = errors.New("no price configured for product")

// Checker answers whether a customer may take on an additional amount.
// Implementations must be fast and side-effect-free; the order command layer
// calls them inside the confirmation transaction.
type Checker interface {
	CheckCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (bool, error)
}

// Pricer resolves the unit price for a product or variant.
type Pricer interface {
	PriceLine(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error)
}

// StaticChecker approves amounts against configured limits and outstanding
// balances. Customers without a configured limit pass unconditionally.
type StaticChecker struct {
	mu          sync.RWMutex
	limits      map[uuid.UUID]decimal.Decimal
	outstanding map[uuid.UUID]decimal.Decimal
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{
		limits:      make(map[uuid.UUID]decimal.Decimal),
		outstanding: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (c *StaticChecker) SetLimit(customerID uuid.UUID, limit decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits[customerID] = limit
}

func (c *StaticChecker) SetOutstanding(customerID uuid.UUID, balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outstanding[customerID] = balance
}

func (c *StaticChecker) CheckCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	limit, ok := c.limits[customerID]
	if !ok {
		return true, nil
	}
	balance := c.outstanding[customerID]
	return balance.Add(amount).LessThanOrEqual(limit), nil
}

// StaticPricer serves prices from a configured table. Variant prices
// override the product price when present.
type StaticPricer struct {
	mu       sync.RWMutex
	products map[uuid.UUID]decimal.Decimal
	variants map[uuid.UUID]decimal.Decimal
}

func NewStaticPricer() *StaticPricer {
	return &StaticPricer{
		products: make(map[uuid.UUID]decimal.Decimal),
		variants: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (p *StaticPricer) SetProductPrice(productID uuid.UUID, unit decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.products[productID] = unit
}

func (p *StaticPricer) SetVariantPrice(variantID uuid.UUID, unit decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variants[variantID] = unit
}

func (p *StaticPricer) PriceLine(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if variantID != nil {
		if unit, ok := p.variants[*variantID]; ok {
			return unit, nil
		}
	}
	if unit, ok := p.products[productID]; ok {
		return unit, nil
	}
	return decimal.Zero, ErrUnpriced
}
