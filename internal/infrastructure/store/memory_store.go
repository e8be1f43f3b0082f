package store

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/outbox"
)

// memState is everything the store holds. Transactions snapshot it before
// running and restore the snapshot on rollback, which gives the memory
// store the same all-or-nothing behavior as a database transaction.
type memState struct {
	items            map[uuid.UUID]*stock.Item
	movements        []*stock.Movement
	reservations     map[uuid.UUID]*stock.Reservation
	reservationOrder []uuid.UUID
	orders           map[uuid.UUID]*order.Order
	orderOrder       []uuid.UUID
	outboxEvents     map[uuid.UUID]*outbox.Event
	outboxOrder      []uuid.UUID
	locations        map[uuid.UUID]*location.Location
	locationOrder    []uuid.UUID
}

func newMemState() *memState {
	return &memState{
		items:        make(map[uuid.UUID]*stock.Item),
		reservations: make(map[uuid.UUID]*stock.Reservation),
		orders:       make(map[uuid.UUID]*order.Order),
		outboxEvents: make(map[uuid.UUID]*outbox.Event),
		locations:    make(map[uuid.UUID]*location.Location),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, it := range s.items {
		c.items[id] = it.Clone()
	}
	c.movements = make([]*stock.Movement, len(s.movements))
	for i, m := range s.movements {
		c.movements[i] = m.Clone()
	}
	for id, r := range s.reservations {
		c.reservations[id] = r.Clone()
	}
	c.reservationOrder = append([]uuid.UUID(nil), s.reservationOrder...)
	for id, o := range s.orders {
		c.orders[id] = o.Clone()
	}
	c.orderOrder = append([]uuid.UUID(nil), s.orderOrder...)
	for id, e := range s.outboxEvents {
		c.outboxEvents[id] = e.Clone()
	}
	c.outboxOrder = append([]uuid.UUID(nil), s.outboxOrder...)
	for id, l := range s.locations {
		cp := *l
		c.locations[id] = &cp
	}
	c.locationOrder = append([]uuid.UUID(nil), s.locationOrder...)
	return c
}

// MemoryStore is an in-memory Store for tests and local development. A
// buffered channel of size one serializes transactions, standing in for the
// database's row locks: a transaction that cannot take the slot before
// LockTimeout elapses fails with ErrLockTimeout, exactly like a blocked
// SELECT ... FOR UPDATE under a lock_timeout.
type MemoryStore struct {
	sem   chan struct{}
	state *memState

	// LockTimeout bounds how long WithinTx waits for the transaction slot.
	LockTimeout time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sem:         make(chan struct{}, 1),
		state:       newMemState(),
		LockTimeout: 2 * time.Second,
	}
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.LockTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ErrLockTimeout
	}
}

func (s *MemoryStore) release() {
	<-s.sem
}

// WithinTx runs fn against the live state under the transaction slot. On
// error the pre-transaction snapshot is restored, so partial writes never
// survive, mirroring a database rollback.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	snapshot := s.state.clone()
	if err := fn(ctx, &memTx{state: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

type memTx struct {
	state *memState
}

func (t *memTx) Stock() stock.Store        { return &memStockRepo{t.state} }
func (t *memTx) Orders() order.Store       { return &memOrderRepo{t.state} }
func (t *memTx) Outbox() outbox.Store      { return &memOutboxRepo{t.state} }
func (t *memTx) Locations() location.Store { return &memLocationRepo{t.state} }

// ---- stock ----

type memStockRepo struct {
	state *memState
}

func variantMatches(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memStockRepo) ItemForUpdate(ctx context.Context, itemID uuid.UUID) (*stock.Item, error) {
	it, ok := r.state.items[itemID]
	if !ok {
		return nil, stock.ErrItemNotFound
	}
	return it.Clone(), nil
}

func (r *memStockRepo) ItemsForUpdateByProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]*stock.Item, error) {
	var items []*stock.Item
	for _, it := range r.state.items {
		if it.ProductID == productID && variantMatches(it.VariantID, variantID) {
			items = append(items, it.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		ai, aj := items[i].Available(), items[j].Available()
		if ai != aj {
			return ai > aj
		}
		return bytes.Compare(items[i].LocationID[:], items[j].LocationID[:]) < 0
	})
	return items, nil
}

func (r *memStockRepo) ItemForUpdateAt(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, locationID uuid.UUID) (*stock.Item, error) {
	for _, it := range r.state.items {
		if it.ProductID == productID && it.LocationID == locationID && variantMatches(it.VariantID, variantID) {
			return it.Clone(), nil
		}
	}
	return nil, stock.ErrItemNotFound
}

func (r *memStockRepo) InsertItem(ctx context.Context, item *stock.Item) error {
	if _, ok := r.state.items[item.ID]; ok {
		return ErrConflict
	}
	for _, it := range r.state.items {
		if it.ProductID == item.ProductID && it.LocationID == item.LocationID && variantMatches(it.VariantID, item.VariantID) {
			return ErrConflict
		}
	}
	r.state.items[item.ID] = item.Clone()
	return nil
}

func (r *memStockRepo) UpdateItemQuantities(ctx context.Context, item *stock.Item) error {
	if _, ok := r.state.items[item.ID]; !ok {
		return stock.ErrItemNotFound
	}
	r.state.items[item.ID] = item.Clone()
	return nil
}

func (r *memStockRepo) InsertMovement(ctx context.Context, m *stock.Movement) error {
	r.state.movements = append(r.state.movements, m.Clone())
	return nil
}

func (r *memStockRepo) InsertReservation(ctx context.Context, res *stock.Reservation) error {
	if _, ok := r.state.reservations[res.ID]; ok {
		return ErrConflict
	}
	r.state.reservations[res.ID] = res.Clone()
	r.state.reservationOrder = append(r.state.reservationOrder, res.ID)
	return nil
}

func (r *memStockRepo) UpdateReservation(ctx context.Context, res *stock.Reservation) error {
	if _, ok := r.state.reservations[res.ID]; !ok {
		return stock.ErrReservationNotFound
	}
	r.state.reservations[res.ID] = res.Clone()
	return nil
}

func (r *memStockRepo) ReservationsForUpdate(ctx context.Context, orderID uuid.UUID) ([]*stock.Reservation, error) {
	var out []*stock.Reservation
	for _, id := range r.state.reservationOrder {
		if res := r.state.reservations[id]; res.OrderID == orderID {
			out = append(out, res.Clone())
		}
	}
	return out, nil
}

func (r *memStockRepo) TotalAvailable(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	total := 0
	for _, it := range r.state.items {
		if it.ProductID == productID && variantMatches(it.VariantID, variantID) {
			total += it.Available()
		}
	}
	return total, nil
}

func (r *memStockRepo) ItemByID(ctx context.Context, itemID uuid.UUID) (*stock.Item, error) {
	it, ok := r.state.items[itemID]
	if !ok {
		return nil, stock.ErrItemNotFound
	}
	return it.Clone(), nil
}

func (r *memStockRepo) ItemsByProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]*stock.Item, error) {
	var items []*stock.Item
	for _, it := range r.state.items {
		if it.ProductID == productID && variantMatches(it.VariantID, variantID) {
			items = append(items, it.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].LocationID[:], items[j].LocationID[:]) < 0
	})
	return items, nil
}

func (r *memStockRepo) MovementsByItem(ctx context.Context, itemID uuid.UUID) ([]*stock.Movement, error) {
	var out []*stock.Movement
	for _, m := range r.state.movements {
		if m.ItemID == itemID {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (r *memStockRepo) ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]*stock.Reservation, error) {
	return r.ReservationsForUpdate(ctx, orderID)
}

// ---- orders ----

type memOrderRepo struct {
	state *memState
}

func (r *memOrderRepo) InsertOrder(ctx context.Context, o *order.Order) error {
	if _, ok := r.state.orders[o.ID]; ok {
		return ErrConflict
	}
	o.Version = 1
	r.state.orders[o.ID] = o.Clone()
	r.state.orderOrder = append(r.state.orderOrder, o.ID)
	return nil
}

func (r *memOrderRepo) UpdateOrder(ctx context.Context, o *order.Order) error {
	stored, ok := r.state.orders[o.ID]
	if !ok {
		return order.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return ErrConflict
	}
	o.Version++
	r.state.orders[o.ID] = o.Clone()
	return nil
}

func (r *memOrderRepo) OrderForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.state.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *memOrderRepo) OrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.OrderForUpdate(ctx, id)
}

func (r *memOrderRepo) ListOrders(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	var out []*order.Order
	for _, id := range r.state.orderOrder {
		o, ok := r.state.orders[id]
		if !ok {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
			continue
		}
		if !f.IncludeArchived && o.ArchivedAt != nil {
			continue
		}
		out = append(out, o.Clone())
	}
	return out, nil
}

func (r *memOrderRepo) DeleteDraftOrder(ctx context.Context, id uuid.UUID) error {
	o, ok := r.state.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != order.StatusDraft {
		return order.ErrNotDraft
	}
	delete(r.state.orders, id)
	for i, oid := range r.state.orderOrder {
		if oid == id {
			r.state.orderOrder = append(r.state.orderOrder[:i], r.state.orderOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ---- outbox (producing side) ----

type memOutboxRepo struct {
	state *memState
}

func (r *memOutboxRepo) InsertOutboxEvent(ctx context.Context, e *outbox.Event) error {
	if _, ok := r.state.outboxEvents[e.ID]; ok {
		return ErrConflict
	}
	r.state.outboxEvents[e.ID] = e.Clone()
	r.state.outboxOrder = append(r.state.outboxOrder, e.ID)
	return nil
}

// ---- locations ----

type memLocationRepo struct {
	state *memState
}

func (r *memLocationRepo) InsertLocation(ctx context.Context, loc *location.Location) error {
	if _, ok := r.state.locations[loc.ID]; ok {
		return ErrConflict
	}
	cp := *loc
	r.state.locations[loc.ID] = &cp
	r.state.locationOrder = append(r.state.locationOrder, loc.ID)
	return nil
}

func (r *memLocationRepo) LocationByID(ctx context.Context, id uuid.UUID) (*location.Location, error) {
	loc, ok := r.state.locations[id]
	if !ok {
		return nil, location.ErrNotFound
	}
	cp := *loc
	return &cp, nil
}

func (r *memLocationRepo) LocationsByParent(ctx context.Context, parentID uuid.UUID) ([]*location.Location, error) {
	var out []*location.Location
	for _, id := range r.state.locationOrder {
		loc := r.state.locations[id]
		if loc.ParentID != nil && *loc.ParentID == parentID {
			cp := *loc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memLocationRepo) AllLocations(ctx context.Context) ([]*location.Location, error) {
	out := make([]*location.Location, 0, len(r.state.locationOrder))
	for _, id := range r.state.locationOrder {
		cp := *r.state.locations[id]
		out = append(out, &cp)
	}
	return out, nil
}

// ---- outbox relay side ----

// ClaimBatch returns due unpublished rows in insertion order and leases
// them. Rows already leased by a live worker are skipped.
func (s *MemoryStore) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*outbox.Event, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	now := time.Now()
	until := now.Add(lease)
	var out []*outbox.Event
	for _, id := range s.state.outboxOrder {
		if len(out) >= limit {
			break
		}
		e := s.state.outboxEvents[id]
		if e.Published || e.Dead || e.NextAttemptAt.After(now) {
			continue
		}
		if e.LeasedUntil != nil && e.LeasedUntil.After(now) {
			continue
		}
		e.LeasedUntil = &until
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *MemoryStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	e, ok := s.state.outboxEvents[id]
	if !ok {
		return outbox.ErrEventNotFound
	}
	now := time.Now()
	e.Published = true
	e.PublishedAt = &now
	e.LeasedUntil = nil
	e.LastError = nil
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time, dead bool) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	e, ok := s.state.outboxEvents[id]
	if !ok {
		return outbox.ErrEventNotFound
	}
	e.Attempts = attempts
	e.LastError = &lastError
	e.NextAttemptAt = nextAttemptAt
	e.Dead = dead
	e.LeasedUntil = nil
	return nil
}

func (s *MemoryStore) RequeueDead(ctx context.Context, id uuid.UUID) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	e, ok := s.state.outboxEvents[id]
	if !ok {
		return outbox.ErrEventNotFound
	}
	if !e.Dead {
		return outbox.ErrNotDead
	}
	e.Dead = false
	e.Attempts = 0
	e.LastError = nil
	e.NextAttemptAt = time.Now()
	e.LeasedUntil = nil
	return nil
}

func (s *MemoryStore) OutboxStats(ctx context.Context) (outbox.Stats, error) {
	if err := s.acquire(ctx); err != nil {
		return outbox.Stats{}, err
	}
	defer s.release()

	var stats outbox.Stats
	for _, id := range s.state.outboxOrder {
		e := s.state.outboxEvents[id]
		switch {
		case e.Published:
			stats.Published++
		case e.Dead:
			stats.Dead++
		default:
			stats.Pending++
			if stats.OldestPending == nil || e.CreatedAt.Before(*stats.OldestPending) {
				t := e.CreatedAt
				stats.OldestPending = &t
			}
		}
	}
	return stats, nil
}

func (s *MemoryStore) DeadEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	var out []*outbox.Event
	for _, id := range s.state.outboxOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		if e := s.state.outboxEvents[id]; e.Dead {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}
