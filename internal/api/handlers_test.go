package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/order-fulfillment/internal/api/middleware"
	"github.com/example/order-fulfillment/internal/command"
	"github.com/example/order-fulfillment/internal/credit"
	"github.com/example/order-fulfillment/internal/deliverynote"
	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
	"github.com/example/order-fulfillment/internal/query"
)

type testAPI struct {
	router  http.Handler
	store   *store.MemoryStore
	pricer  *credit.StaticPricer
	checker *credit.StaticChecker
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	ledger := stock.NewLedger(logger)
	allocator := stock.NewAllocator(ledger)
	notes := deliverynote.NewHandler(logger)
	dispatcher := command.NewDispatcher(allocator, notes)
	checker := credit.NewStaticChecker()
	pricer := credit.NewStaticPricer()

	commands := command.NewHandler(st, dispatcher, ledger, checker, pricer, decimal.NewFromInt(10), logger)
	queries := query.NewHandler(st, st)
	handlers := NewHandlers(commands, queries, st, logger)

	return &testAPI{
		router:  NewRouter(handlers, logger),
		store:   st,
		pricer:  pricer,
		checker: checker,
	}
}

// do runs one request through the full router, including middleware.
func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func (a *testAPI) createWarehouse(t *testing.T) uuid.UUID {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/locations", `{"kind":"warehouse","code":"WH-1","name":"Main warehouse"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loc location.Location
	decodeInto(t, rec, &loc)
	return loc.ID
}

func (a *testAPI) receive(t *testing.T, productID, locationID uuid.UUID, qty int) stock.Item {
	t.Helper()
	body := fmt.Sprintf(`{"product_id":%q,"location_id":%q,"quantity":%d,"receipt_id":%q,"actor_id":%q}`,
		productID, locationID, qty, uuid.New(), uuid.New())
	rec := a.do(t, http.MethodPost, "/stock/entries", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item stock.Item
	decodeInto(t, rec, &item)
	return item
}

func (a *testAPI) createDraft(t *testing.T, customerID, productID uuid.UUID, qty int) order.Order {
	t.Helper()
	body := fmt.Sprintf(`{"customer_id":%q,"lines":[{"product_id":%q,"label":"widget","quantity":%d,"unit_price":"10"}]}`,
		customerID, productID, qty)
	rec := a.do(t, http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o order.Order
	decodeInto(t, rec, &o)
	return o
}

func (a *testAPI) confirm(t *testing.T, orderID uuid.UUID) order.Order {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/orders/"+orderID.String()+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var o order.Order
	decodeInto(t, rec, &o)
	return o
}

// ============================================
// Order Endpoint Tests
// ============================================

func TestAPI_CreateOrder(t *testing.T) {
	a := newTestAPI(t)

	o := a.createDraft(t, uuid.New(), uuid.New(), 2)

	assert.Equal(t, order.StatusDraft, o.Status)
	require.Len(t, o.Lines, 1)
	assert.True(t, o.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))
}

func TestAPI_CreateOrder_MissingCustomer(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/orders", `{"lines":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "customer_id")
}

func TestAPI_CreateOrder_MalformedBody(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/orders", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetOrder_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/orders/"+uuid.New().String(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetOrder_InvalidID(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/orders/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ListOrders_FilterByStatus(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	a.createDraft(t, uuid.New(), productID, 1)
	confirmed := a.createDraft(t, uuid.New(), productID, 1)
	a.confirm(t, confirmed.ID)

	rec := a.do(t, http.MethodGet, "/orders?status=confirmed", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var orders []order.Order
	decodeInto(t, rec, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, confirmed.ID, orders[0].ID)
}

func TestAPI_ConfirmOrder_ReservesStock(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 4)
	confirmed := a.confirm(t, o.ID)
	assert.Equal(t, order.StatusConfirmed, confirmed.Status)

	// Reservations are visible through the API.
	rec := a.do(t, http.MethodGet, "/orders/"+o.ID.String()+"/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reservations []stock.Reservation
	decodeInto(t, rec, &reservations)
	require.Len(t, reservations, 1)
	assert.Equal(t, 4, reservations[0].Quantity)
	assert.Equal(t, stock.ReservationReserved, reservations[0].Status)

	// Stock levels reflect the hold.
	rec = a.do(t, http.MethodGet, "/stock/levels?product_id="+productID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var levels query.StockLevels
	decodeInto(t, rec, &levels)
	assert.Equal(t, 10, levels.TotalPhysical)
	assert.Equal(t, 4, levels.TotalReserved)
	assert.Equal(t, 6, levels.TotalAvailable)
}

func TestAPI_ConfirmOrder_InsufficientStock(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 3)

	o := a.createDraft(t, uuid.New(), productID, 5)
	rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/confirm", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient stock")

	// The order is unchanged and nothing was reserved.
	var got order.Order
	getRec := a.do(t, http.MethodGet, "/orders/"+o.ID.String(), "")
	decodeInto(t, getRec, &got)
	assert.Equal(t, order.StatusDraft, got.Status)
}

func TestAPI_ConfirmOrder_Empty(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPost, "/orders", fmt.Sprintf(`{"customer_id":%q}`, uuid.New()))
	require.Equal(t, http.StatusCreated, rec.Code)
	var o order.Order
	decodeInto(t, rec, &o)

	confirmRec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/confirm", "")

	assert.Equal(t, http.StatusConflict, confirmRec.Code)
}

func TestAPI_ConfirmOrder_Twice(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 1)
	a.confirm(t, o.ID)
	rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/confirm", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_CancelOrder_ReleasesReservations(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 4)
	a.confirm(t, o.ID)

	rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/cancel", `{"reason":"customer changed mind"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var canceled order.Order
	decodeInto(t, rec, &canceled)
	assert.Equal(t, order.StatusCanceled, canceled.Status)
	assert.Equal(t, "customer changed mind", canceled.CancelReason)

	// Reservations survive as released rows; availability is back.
	resRec := a.do(t, http.MethodGet, "/orders/"+o.ID.String()+"/reservations", "")
	var reservations []stock.Reservation
	decodeInto(t, resRec, &reservations)
	require.Len(t, reservations, 1)
	assert.Equal(t, stock.ReservationReleased, reservations[0].Status)

	levelsRec := a.do(t, http.MethodGet, "/stock/levels?product_id="+productID.String(), "")
	var levels query.StockLevels
	decodeInto(t, levelsRec, &levels)
	assert.Equal(t, 10, levels.TotalAvailable)
}

func TestAPI_FullLifecycle(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 2)
	a.confirm(t, o.ID)

	for _, action := range []string{"prepare", "ready", "ship", "deliver", "invoice"} {
		rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/"+action, "")
		require.Equal(t, http.StatusOK, rec.Code, "action %s: %s", action, rec.Body.String())
	}

	var got order.Order
	getRec := a.do(t, http.MethodGet, "/orders/"+o.ID.String(), "")
	decodeInto(t, getRec, &got)
	assert.Equal(t, order.StatusInvoiced, got.Status)

	// Delivery converted the reservation and consumed the stock.
	resRec := a.do(t, http.MethodGet, "/orders/"+o.ID.String()+"/reservations", "")
	var reservations []stock.Reservation
	decodeInto(t, resRec, &reservations)
	require.Len(t, reservations, 1)
	assert.Equal(t, stock.ReservationFulfilled, reservations[0].Status)

	levelsRec := a.do(t, http.MethodGet, "/stock/levels?product_id="+productID.String(), "")
	var levels query.StockLevels
	decodeInto(t, levelsRec, &levels)
	assert.Equal(t, 8, levels.TotalPhysical)
	assert.Zero(t, levels.TotalReserved)
}

func TestAPI_CancelAfterShipment_Rejected(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 1)
	a.confirm(t, o.ID)
	for _, action := range []string{"prepare", "ready", "ship"} {
		rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/"+action, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/cancel", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_AddAndRemoveLine(t *testing.T) {
	a := newTestAPI(t)
	o := a.createDraft(t, uuid.New(), uuid.New(), 1)

	body := fmt.Sprintf(`{"product_id":%q,"label":"gadget","quantity":3,"unit_price":"5.50"}`, uuid.New())
	rec := a.do(t, http.MethodPost, "/orders/"+o.ID.String()+"/lines", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated order.Order
	decodeInto(t, rec, &updated)
	require.Len(t, updated.Lines, 2)

	delRec := a.do(t, http.MethodDelete, "/orders/"+o.ID.String()+"/lines/"+updated.Lines[1].ID.String(), "")
	require.Equal(t, http.StatusOK, delRec.Code)
	var trimmed order.Order
	decodeInto(t, delRec, &trimmed)
	assert.Len(t, trimmed.Lines, 1)
}

func TestAPI_SetDiscount(t *testing.T) {
	a := newTestAPI(t)
	o := a.createDraft(t, uuid.New(), uuid.New(), 1)

	rec := a.do(t, http.MethodPut, "/orders/"+o.ID.String()+"/discount", `{"percent":"5"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated order.Order
	decodeInto(t, rec, &updated)
	assert.True(t, updated.DiscountPercent.Equal(decimal.NewFromInt(5)))
}

func TestAPI_ArchiveDraft_Deletes(t *testing.T) {
	a := newTestAPI(t)
	o := a.createDraft(t, uuid.New(), uuid.New(), 1)

	rec := a.do(t, http.MethodDelete, "/orders/"+o.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	getRec := a.do(t, http.MethodGet, "/orders/"+o.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestAPI_ArchiveConfirmed_Rejected(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 1)
	a.confirm(t, o.ID)

	rec := a.do(t, http.MethodDelete, "/orders/"+o.ID.String(), "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================
// Stock Endpoint Tests
// ============================================

func TestAPI_ReceiveStock_UnknownLocation(t *testing.T) {
	a := newTestAPI(t)

	body := fmt.Sprintf(`{"product_id":%q,"location_id":%q,"quantity":5,"actor_id":%q}`,
		uuid.New(), uuid.New(), uuid.New())
	rec := a.do(t, http.MethodPost, "/stock/entries", body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_WithdrawStock(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	body := fmt.Sprintf(`{"product_id":%q,"location_id":%q,"quantity":4,"actor_id":%q,"reason":"damage"}`,
		productID, warehouseID, uuid.New())
	rec := a.do(t, http.MethodPost, "/stock/withdrawals", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item stock.Item
	decodeInto(t, rec, &item)
	assert.Equal(t, 6, item.Physical)
}

func TestAPI_TransferStock(t *testing.T) {
	a := newTestAPI(t)
	from := a.createWarehouse(t)
	rec := a.do(t, http.MethodPost, "/locations", `{"kind":"warehouse","code":"WH-2","name":"Second"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var to location.Location
	decodeInto(t, rec, &to)

	productID := uuid.New()
	a.receive(t, productID, from, 10)

	body := fmt.Sprintf(`{"product_id":%q,"from_location_id":%q,"to_location_id":%q,"quantity":4,"actor_id":%q}`,
		productID, from, to.ID, uuid.New())
	transferRec := a.do(t, http.MethodPost, "/stock/transfers", body)
	require.Equal(t, http.StatusNoContent, transferRec.Code, transferRec.Body.String())

	levelsRec := a.do(t, http.MethodGet, "/stock/levels?product_id="+productID.String(), "")
	var levels query.StockLevels
	decodeInto(t, levelsRec, &levels)
	assert.Len(t, levels.Locations, 2)
	assert.Equal(t, 10, levels.TotalPhysical)
}

func TestAPI_AdjustStock_BelowReserved(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	item := a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 8)
	a.confirm(t, o.ID)

	body := fmt.Sprintf(`{"item_id":%q,"delta":-5,"actor_id":%q,"reason":"recount"}`, item.ID, uuid.New())
	rec := a.do(t, http.MethodPost, "/stock/adjustments", body)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_AdjustStock_Positive(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	item := a.receive(t, uuid.New(), warehouseID, 10)

	body := fmt.Sprintf(`{"item_id":%q,"delta":3,"actor_id":%q,"reason":"recount"}`, item.ID, uuid.New())
	rec := a.do(t, http.MethodPost, "/stock/adjustments", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var adjusted stock.Item
	decodeInto(t, rec, &adjusted)
	assert.Equal(t, 13, adjusted.Physical)
}

func TestAPI_GetItemMovements(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	item := a.receive(t, uuid.New(), warehouseID, 10)

	rec := a.do(t, http.MethodGet, "/stock/items/"+item.ID.String()+"/movements", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var movements []stock.Movement
	decodeInto(t, rec, &movements)
	require.Len(t, movements, 1)
	assert.Equal(t, stock.MovementEntry, movements[0].Kind)
}

func TestAPI_GetStockLevels_MissingProduct(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/stock/levels", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================
// Location Endpoint Tests
// ============================================

func TestAPI_LocationHierarchy(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)

	zoneBody := fmt.Sprintf(`{"kind":"zone","code":"Z-A","name":"Zone A","parent_id":%q}`, warehouseID)
	rec := a.do(t, http.MethodPost, "/locations", zoneBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	getRec := a.do(t, http.MethodGet, "/locations/"+warehouseID.String(), "")
	require.Equal(t, http.StatusOK, getRec.Code)
	var node query.LocationNode
	decodeInto(t, getRec, &node)
	assert.Len(t, node.Children, 1)
}

func TestAPI_CreateLocation_InvalidParent(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)

	// A bin's parent must be a zone, not a warehouse.
	binBody := fmt.Sprintf(`{"kind":"bin","code":"B-1","name":"Bin 1","parent_id":%q}`, warehouseID)
	rec := a.do(t, http.MethodPost, "/locations", binBody)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================
// Outbox Endpoint Tests
// ============================================

func TestAPI_OutboxStats_AfterConfirm(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	productID := uuid.New()
	a.receive(t, productID, warehouseID, 10)

	o := a.createDraft(t, uuid.New(), productID, 1)
	a.confirm(t, o.ID)

	rec := a.do(t, http.MethodGet, "/outbox/stats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var stats outbox.Stats
	decodeInto(t, rec, &stats)
	assert.Equal(t, 1, stats.Pending)
}

func TestAPI_RequeueDeadEvent(t *testing.T) {
	a := newTestAPI(t)
	dead := &outbox.Event{
		ID:            uuid.New(),
		EventType:     "OrderConfirmed",
		AggregateID:   uuid.New().String(),
		Payload:       []byte(`{}`),
		CreatedAt:     time.Now(),
		NextAttemptAt: time.Now(),
		Attempts:      10,
		Dead:          true,
	}
	require.NoError(t, a.store.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Outbox().InsertOutboxEvent(ctx, dead)
	}))

	listRec := a.do(t, http.MethodGet, "/outbox/dead", "")
	require.Equal(t, http.StatusOK, listRec.Code)
	var events []outbox.Event
	decodeInto(t, listRec, &events)
	require.Len(t, events, 1)

	rec := a.do(t, http.MethodPost, "/outbox/dead/"+dead.ID.String()+"/requeue", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Requeued row is pending again.
	statsRec := a.do(t, http.MethodGet, "/outbox/stats", "")
	var stats outbox.Stats
	decodeInto(t, statsRec, &stats)
	assert.Equal(t, 1, stats.Pending)
	assert.Zero(t, stats.Dead)
}

func TestAPI_RequeueDeadEvent_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/outbox/dead/"+uuid.New().String()+"/requeue", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================
// Router Tests
// ============================================

func TestAPI_MethodNotAllowed(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPut, "/orders", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_ActorHeader_FlowsToMovement(t *testing.T) {
	a := newTestAPI(t)
	warehouseID := a.createWarehouse(t)
	actorID := uuid.New()

	body := fmt.Sprintf(`{"product_id":%q,"location_id":%q,"quantity":5,"receipt_id":%q}`,
		uuid.New(), warehouseID, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/stock/entries", strings.NewReader(body))
	req.Header.Set(middleware.HeaderActorID, actorID.String())
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var item stock.Item
	decodeInto(t, rec, &item)

	movRec := a.do(t, http.MethodGet, "/stock/items/"+item.ID.String()+"/movements", "")
	var movements []stock.Movement
	decodeInto(t, movRec, &movements)
	require.Len(t, movements, 1)
	assert.Equal(t, actorID, movements[0].ActorID)
}

func TestAPI_Health(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
