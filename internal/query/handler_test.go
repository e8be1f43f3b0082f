package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
)

type testQuery struct {
	handler *Handler
	store   *store.MemoryStore
}

func newTestQuery(t *testing.T) *testQuery {
	t.Helper()
	st := store.NewMemoryStore()
	return &testQuery{handler: NewHandler(st, st), store: st}
}

// seed runs fn in a write transaction and fails the test on error.
func (q *testQuery) seed(t *testing.T, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, q.store.WithinTx(context.Background(), fn))
}

func (q *testQuery) seedOrder(t *testing.T, customerID uuid.UUID, status order.Status) *order.Order {
	t.Helper()
	o := order.New(customerID, false)
	_, err := o.AddLine(uuid.New(), nil, "widget", 2, decimal.NewFromInt(10))
	require.NoError(t, err)
	o.Status = status
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Orders().InsertOrder(ctx, o)
	})
	return o
}

func (q *testQuery) seedItem(t *testing.T, productID uuid.UUID, locationID uuid.UUID, physical, reserved int) *stock.Item {
	t.Helper()
	item := stock.NewItem(productID, nil, locationID)
	item.Physical = physical
	item.Reserved = reserved
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Stock().InsertItem(ctx, item)
	})
	return item
}

func (q *testQuery) seedLocation(t *testing.T, kind location.Kind, code string, parentID *uuid.UUID) *location.Location {
	t.Helper()
	loc, err := location.New(kind, code, code, parentID)
	require.NoError(t, err)
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Locations().InsertLocation(ctx, loc)
	})
	return loc
}

// ============================================
// Order Query Tests
// ============================================

func TestHandler_GetOrder(t *testing.T) {
	q := newTestQuery(t)
	seeded := q.seedOrder(t, uuid.New(), order.StatusDraft)

	got, err := q.handler.GetOrder(context.Background(), seeded.ID)

	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Len(t, got.Lines, 1)
}

func TestHandler_GetOrder_NotFound(t *testing.T) {
	q := newTestQuery(t)

	_, err := q.handler.GetOrder(context.Background(), uuid.New())

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestHandler_ListOrders_FiltersByStatusAndCustomer(t *testing.T) {
	q := newTestQuery(t)
	customerID := uuid.New()
	q.seedOrder(t, customerID, order.StatusDraft)
	q.seedOrder(t, customerID, order.StatusConfirmed)
	q.seedOrder(t, uuid.New(), order.StatusConfirmed)

	confirmed := order.StatusConfirmed
	got, err := q.handler.ListOrders(context.Background(), order.Filter{
		Status:     &confirmed,
		CustomerID: &customerID,
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, customerID, got[0].CustomerID)
	assert.Equal(t, order.StatusConfirmed, got[0].Status)
}

func TestHandler_ListOrders_ExcludesArchivedByDefault(t *testing.T) {
	q := newTestQuery(t)
	archived := q.seedOrder(t, uuid.New(), order.StatusInvoiced)
	now := time.Now()
	archived.ArchivedAt = &now
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Orders().UpdateOrder(ctx, archived)
	})
	q.seedOrder(t, uuid.New(), order.StatusDraft)

	visible, err := q.handler.ListOrders(context.Background(), order.Filter{})
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, err := q.handler.ListOrders(context.Background(), order.Filter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHandler_GetOrderReservations(t *testing.T) {
	q := newTestQuery(t)
	o := q.seedOrder(t, uuid.New(), order.StatusConfirmed)
	item := q.seedItem(t, uuid.New(), uuid.New(), 10, 3)
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Stock().InsertReservation(ctx, stock.NewReservation(o.ID, o.Lines[0].ID, item.ID, 3))
	})

	got, err := q.handler.GetOrderReservations(context.Background(), o.ID)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Quantity)
}

func TestHandler_GetOrderReservations_UnknownOrder(t *testing.T) {
	q := newTestQuery(t)

	_, err := q.handler.GetOrderReservations(context.Background(), uuid.New())

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// Stock Query Tests
// ============================================

func TestHandler_GetStockLevels_SumsAcrossLocations(t *testing.T) {
	q := newTestQuery(t)
	productID := uuid.New()
	q.seedItem(t, productID, uuid.New(), 10, 4)
	q.seedItem(t, productID, uuid.New(), 5, 0)
	q.seedItem(t, uuid.New(), uuid.New(), 99, 0) // other product

	levels, err := q.handler.GetStockLevels(context.Background(), productID, nil)

	require.NoError(t, err)
	assert.Len(t, levels.Locations, 2)
	assert.Equal(t, 15, levels.TotalPhysical)
	assert.Equal(t, 4, levels.TotalReserved)
	assert.Equal(t, 11, levels.TotalAvailable)
}

func TestHandler_GetStockLevels_UnknownProduct_IsEmpty(t *testing.T) {
	q := newTestQuery(t)

	levels, err := q.handler.GetStockLevels(context.Background(), uuid.New(), nil)

	require.NoError(t, err)
	assert.Empty(t, levels.Locations)
	assert.Zero(t, levels.TotalAvailable)
}

func TestHandler_GetItemMovements(t *testing.T) {
	q := newTestQuery(t)
	item := q.seedItem(t, uuid.New(), uuid.New(), 10, 0)
	ref := stock.Ref{Kind: stock.RefReceipt, ID: uuid.New(), ActorID: uuid.New()}
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Stock().InsertMovement(ctx, stock.NewMovement(item.ID, stock.MovementEntry, 10, ref))
	})

	movements, err := q.handler.GetItemMovements(context.Background(), item.ID)

	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, stock.MovementEntry, movements[0].Kind)
	assert.Equal(t, 10, movements[0].Quantity)
}

func TestHandler_GetItemMovements_UnknownItem(t *testing.T) {
	q := newTestQuery(t)

	_, err := q.handler.GetItemMovements(context.Background(), uuid.New())

	assert.ErrorIs(t, err, stock.ErrItemNotFound)
}

// ============================================
// Location Query Tests
// ============================================

func TestHandler_GetLocation_WithChildren(t *testing.T) {
	q := newTestQuery(t)
	warehouse := q.seedLocation(t, location.KindWarehouse, "WH-1", nil)
	q.seedLocation(t, location.KindZone, "Z-A", &warehouse.ID)
	q.seedLocation(t, location.KindZone, "Z-B", &warehouse.ID)

	node, err := q.handler.GetLocation(context.Background(), warehouse.ID)

	require.NoError(t, err)
	assert.Equal(t, "WH-1", node.Code)
	assert.Len(t, node.Children, 2)
}

func TestHandler_GetLocation_NotFound(t *testing.T) {
	q := newTestQuery(t)

	_, err := q.handler.GetLocation(context.Background(), uuid.New())

	assert.ErrorIs(t, err, location.ErrNotFound)
}

func TestHandler_ListLocations(t *testing.T) {
	q := newTestQuery(t)
	q.seedLocation(t, location.KindWarehouse, "WH-1", nil)
	q.seedLocation(t, location.KindWarehouse, "WH-2", nil)

	locations, err := q.handler.ListLocations(context.Background())

	require.NoError(t, err)
	assert.Len(t, locations, 2)
}

// ============================================
// Outbox Query Tests
// ============================================

func TestHandler_GetOutboxStats(t *testing.T) {
	q := newTestQuery(t)
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Outbox().InsertOutboxEvent(ctx, &outbox.Event{
			ID:            uuid.New(),
			EventType:     "OrderConfirmed",
			AggregateID:   uuid.New().String(),
			Payload:       []byte(`{}`),
			CreatedAt:     time.Now(),
			NextAttemptAt: time.Now(),
		})
	})

	stats, err := q.handler.GetOutboxStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Zero(t, stats.Published)
	require.NotNil(t, stats.OldestPending)
}

func TestHandler_ListDeadEvents(t *testing.T) {
	q := newTestQuery(t)
	q.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Outbox().InsertOutboxEvent(ctx, &outbox.Event{
			ID:            uuid.New(),
			EventType:     "OrderConfirmed",
			AggregateID:   uuid.New().String(),
			Payload:       []byte(`{}`),
			CreatedAt:     time.Now(),
			NextAttemptAt: time.Now(),
			Dead:          true,
		})
	})

	dead, err := q.handler.ListDeadEvents(context.Background(), 10)

	require.NoError(t, err)
	assert.Len(t, dead, 1)
}
