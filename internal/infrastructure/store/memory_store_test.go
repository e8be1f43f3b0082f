package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/outbox"
)

func seedOutboxEvent(t *testing.T, st *MemoryStore, mutate func(e *outbox.Event)) *outbox.Event {
	t.Helper()
	e := &outbox.Event{
		ID:            uuid.New(),
		EventType:     "OrderConfirmed",
		AggregateID:   uuid.New().String(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     time.Now(),
		NextAttemptAt: time.Now(),
	}
	if mutate != nil {
		mutate(e)
	}
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Outbox().InsertOutboxEvent(ctx, e)
	}))
	return e
}

// ============================================
// Transaction Tests
// ============================================

func TestMemoryStore_WithinTx_CommitsOnSuccess(t *testing.T) {
	st := NewMemoryStore()
	o := order.New(uuid.New(), false)

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Orders().InsertOrder(ctx, o)
	})

	require.NoError(t, err)
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		got, err := tx.Orders().OrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		return nil
	}))
}

func TestMemoryStore_WithinTx_RollsBackOnError(t *testing.T) {
	st := NewMemoryStore()
	o := order.New(uuid.New(), false)
	item := stock.NewItem(uuid.New(), nil, uuid.New())
	boom := errors.New("boom")

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.Stock().InsertItem(ctx, item); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Orders().OrderByID(ctx, o.ID)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
		_, err = tx.Stock().ItemByID(ctx, item.ID)
		assert.ErrorIs(t, err, stock.ErrItemNotFound)
		return nil
	}))
}

func TestMemoryStore_WithinTx_LockTimeout(t *testing.T) {
	st := NewMemoryStore()
	st.LockTimeout = 50 * time.Millisecond

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)

	close(release)
	<-done
}

// ============================================
// Order Repository Tests
// ============================================

func TestMemoryStore_InsertOrder_DuplicateID(t *testing.T) {
	st := NewMemoryStore()
	o := order.New(uuid.New(), false)

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.Orders().InsertOrder(ctx, o)
	})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_UpdateOrder_StaleVersionConflicts(t *testing.T) {
	st := NewMemoryStore()
	o := order.New(uuid.New(), false)
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Orders().InsertOrder(ctx, o)
	}))
	stale := o.Clone()

	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		fresh, err := tx.Orders().OrderForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		return tx.Orders().UpdateOrder(ctx, fresh)
	}))

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Orders().UpdateOrder(ctx, stale)
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_DeleteDraftOrder(t *testing.T) {
	st := NewMemoryStore()
	draft := order.New(uuid.New(), false)
	confirmed := order.New(uuid.New(), false)
	confirmed.Status = order.StatusConfirmed
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().InsertOrder(ctx, draft); err != nil {
			return err
		}
		return tx.Orders().InsertOrder(ctx, confirmed)
	}))

	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Orders().DeleteDraftOrder(ctx, draft.ID)
	}))

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Orders().OrderByID(ctx, draft.ID)
		return err
	})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	err = st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Orders().DeleteDraftOrder(ctx, confirmed.ID)
	})
	assert.ErrorIs(t, err, order.ErrNotDraft)

	err = st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Orders().DeleteDraftOrder(ctx, uuid.New())
	})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

// ============================================
// Stock Repository Tests
// ============================================

func TestMemoryStore_InsertItem_DuplicateSlotConflicts(t *testing.T) {
	st := NewMemoryStore()
	productID, locationID := uuid.New(), uuid.New()
	variantID := uuid.New()

	err := st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Stock().InsertItem(ctx, stock.NewItem(productID, nil, locationID)); err != nil {
			return err
		}
		// Same variant at the same location is a duplicate slot.
		if err := tx.Stock().InsertItem(ctx, stock.NewItem(productID, nil, locationID)); !errors.Is(err, ErrConflict) {
			return errors.New("expected conflict for duplicate slot")
		}
		// A distinct variant is its own slot.
		return tx.Stock().InsertItem(ctx, stock.NewItem(productID, &variantID, locationID))
	})

	require.NoError(t, err)
}

func TestMemoryStore_ItemsForUpdateByProduct_Ordering(t *testing.T) {
	st := NewMemoryStore()
	productID := uuid.New()
	variantID := uuid.New()
	locA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	locB := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	locC := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	seed := func(locationID uuid.UUID, variant *uuid.UUID, physical int) {
		item := stock.NewItem(productID, variant, locationID)
		item.Physical = physical
		require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			return tx.Stock().InsertItem(ctx, item)
		}))
	}
	// Scrambled insertion order; the tie between A and B must fall to the
	// lower location id.
	seed(locC, nil, 5)
	seed(locB, nil, 8)
	seed(locA, nil, 8)
	seed(locA, &variantID, 100)

	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		items, err := tx.Stock().ItemsForUpdateByProduct(ctx, productID, nil)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, locA, items[0].LocationID)
		assert.Equal(t, locB, items[1].LocationID)
		assert.Equal(t, locC, items[2].LocationID)
		return nil
	}))
}

// ============================================
// Outbox Claim/Lease Tests
// ============================================

func TestMemoryStore_ClaimBatch_LeasesRows(t *testing.T) {
	st := NewMemoryStore()
	first := seedOutboxEvent(t, st, nil)
	second := seedOutboxEvent(t, st, nil)

	claimed, err := st.ClaimBatch(context.Background(), 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)

	again, err := st.ClaimBatch(context.Background(), 10, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, again, "leased rows must not be claimable twice")
}

func TestMemoryStore_ClaimBatch_ReclaimsExpiredLease(t *testing.T) {
	st := NewMemoryStore()
	evt := seedOutboxEvent(t, st, nil)

	_, err := st.ClaimBatch(context.Background(), 10, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	claimed, err := st.ClaimBatch(context.Background(), 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, evt.ID, claimed[0].ID)
}

func TestMemoryStore_ClaimBatch_SkipsPublishedDeadAndFuture(t *testing.T) {
	st := NewMemoryStore()
	seedOutboxEvent(t, st, func(e *outbox.Event) { e.Published = true })
	seedOutboxEvent(t, st, func(e *outbox.Event) { e.Dead = true })
	seedOutboxEvent(t, st, func(e *outbox.Event) { e.NextAttemptAt = time.Now().Add(time.Hour) })
	due := seedOutboxEvent(t, st, nil)

	claimed, err := st.ClaimBatch(context.Background(), 10, 30*time.Second)

	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
}

func TestMemoryStore_ClaimBatch_HonorsLimit(t *testing.T) {
	st := NewMemoryStore()
	first := seedOutboxEvent(t, st, nil)
	second := seedOutboxEvent(t, st, nil)
	seedOutboxEvent(t, st, nil)

	claimed, err := st.ClaimBatch(context.Background(), 2, 30*time.Second)

	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)
}

func TestMemoryStore_MarkPublished(t *testing.T) {
	st := NewMemoryStore()
	evt := seedOutboxEvent(t, st, nil)

	require.NoError(t, st.MarkPublished(context.Background(), evt.ID))

	stats, err := st.OutboxStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)
	assert.Zero(t, stats.Pending)

	claimed, err := st.ClaimBatch(context.Background(), 10, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	assert.ErrorIs(t, st.MarkPublished(context.Background(), uuid.New()), outbox.ErrEventNotFound)
}

func TestMemoryStore_MarkFailed_RecordsAttempt(t *testing.T) {
	st := NewMemoryStore()
	evt := seedOutboxEvent(t, st, nil)
	next := time.Now().Add(time.Minute)

	require.NoError(t, st.MarkFailed(context.Background(), evt.ID, 3, "broker down", next, true))

	dead, err := st.DeadEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, evt.ID, dead[0].ID)
	assert.Equal(t, 3, dead[0].Attempts)
	require.NotNil(t, dead[0].LastError)
	assert.Equal(t, "broker down", *dead[0].LastError)
	assert.True(t, dead[0].Dead)
}

func TestMemoryStore_RequeueDead(t *testing.T) {
	st := NewMemoryStore()
	evt := seedOutboxEvent(t, st, nil)
	require.NoError(t, st.MarkFailed(context.Background(), evt.ID, 8, "broker down", time.Now(), true))

	require.NoError(t, st.RequeueDead(context.Background(), evt.ID))

	stats, err := st.OutboxStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Zero(t, stats.Dead)

	claimed, err := st.ClaimBatch(context.Background(), 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Zero(t, claimed[0].Attempts, "requeue must reset the attempt budget")
	assert.Nil(t, claimed[0].LastError)
}

func TestMemoryStore_RequeueDead_RejectsLiveRows(t *testing.T) {
	st := NewMemoryStore()
	evt := seedOutboxEvent(t, st, nil)

	assert.ErrorIs(t, st.RequeueDead(context.Background(), evt.ID), outbox.ErrNotDead)
	assert.ErrorIs(t, st.RequeueDead(context.Background(), uuid.New()), outbox.ErrEventNotFound)
}

func TestMemoryStore_OutboxStats(t *testing.T) {
	st := NewMemoryStore()
	oldest := seedOutboxEvent(t, st, func(e *outbox.Event) {
		e.CreatedAt = time.Now().Add(-time.Hour)
	})
	seedOutboxEvent(t, st, nil)
	published := seedOutboxEvent(t, st, nil)
	require.NoError(t, st.MarkPublished(context.Background(), published.ID))
	deadRow := seedOutboxEvent(t, st, nil)
	require.NoError(t, st.MarkFailed(context.Background(), deadRow.ID, 8, "broker down", time.Now(), true))

	stats, err := st.OutboxStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 1, stats.Dead)
	require.NotNil(t, stats.OldestPending)
	assert.True(t, stats.OldestPending.Equal(oldest.CreatedAt))
}

func TestMemoryStore_DeadEvents_Limit(t *testing.T) {
	st := NewMemoryStore()
	for i := 0; i < 3; i++ {
		evt := seedOutboxEvent(t, st, nil)
		require.NoError(t, st.MarkFailed(context.Background(), evt.ID, 8, "broker down", time.Now(), true))
	}

	dead, err := st.DeadEvents(context.Background(), 2)

	require.NoError(t, err)
	assert.Len(t, dead, 2)
}

// ============================================
// Relay Integration Tests
// ============================================

// flakyPublisher fails the first failures calls, then delivers.
type flakyPublisher struct {
	failures  int
	calls     int
	envelopes []outbox.Envelope
}

func (p *flakyPublisher) Publish(ctx context.Context, env outbox.Envelope) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("transient broker error")
	}
	p.envelopes = append(p.envelopes, env)
	return nil
}

// The store and the relay together must deliver every enqueued event at
// least once, surviving transient publish failures via backoff and retry.
func TestMemoryStore_RelayDeliversDespiteTransientFailures(t *testing.T) {
	st := NewMemoryStore()
	evt := seedOutboxEvent(t, st, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	publisher := &flakyPublisher{failures: 2}
	cfg := outbox.DefaultRelayConfig()
	cfg.BaseRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 2 * time.Millisecond
	relay := outbox.NewRelay(st, publisher, cfg, logger)

	require.Eventually(t, func() bool {
		relay.Tick(context.Background())
		stats, err := st.OutboxStats(context.Background())
		return err == nil && stats.Published == 1
	}, 2*time.Second, time.Millisecond)

	require.Len(t, publisher.envelopes, 1)
	assert.Equal(t, evt.ID, publisher.envelopes[0].EventID)
	assert.Equal(t, 3, publisher.calls)
}
