package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/outbox"
)

// pq error code raised when lock_timeout expires while waiting on a row lock
const pqLockNotAvailable = "55P03"

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// PostgresStore runs units of work on PostgreSQL with pessimistic row
// locking. Every WithinTx sets a local lock_timeout so a transaction stuck
// behind a competing allocation fails with ErrLockTimeout instead of
// waiting forever.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classifyPgError(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// classifyPgError maps driver failures onto the store sentinels so callers
// can react without knowing the engine.
func classifyPgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqLockNotAvailable {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Stock() stock.Store        { return &pgStockRepo{t.tx} }
func (t *pgTx) Orders() order.Store       { return &pgOrderRepo{t.tx} }
func (t *pgTx) Outbox() outbox.Store      { return &pgOutboxRepo{t.tx} }
func (t *pgTx) Locations() location.Store { return &pgLocationRepo{t.tx} }

// EnsureSchema creates the tables this store relies on. Safe to run on
// every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stock_items (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL,
			variant_id UUID,
			location_id UUID NOT NULL,
			physical_quantity INT NOT NULL DEFAULT 0,
			reserved_quantity INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT stock_items_nonnegative_chk CHECK (physical_quantity >= 0 AND reserved_quantity >= 0)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stock_items_product_location_idx
			ON stock_items (product_id, location_id, COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'::uuid))`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY,
			item_id UUID NOT NULL REFERENCES stock_items(id),
			kind TEXT NOT NULL,
			quantity INT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			actor_id UUID NOT NULL,
			ref_kind TEXT NOT NULL,
			ref_id UUID NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS stock_movements_item_idx ON stock_movements (item_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS stock_reservations (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL,
			line_id UUID NOT NULL,
			item_id UUID NOT NULL REFERENCES stock_items(id),
			quantity INT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS stock_reservations_order_idx ON stock_reservations (order_id)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			customer_id UUID NOT NULL,
			status TEXT NOT NULL,
			discount_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
			discount_approved BOOLEAN NOT NULL DEFAULT false,
			credit_check BOOLEAN NOT NULL DEFAULT false,
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			confirmed_at TIMESTAMPTZ,
			ready_at TIMESTAMPTZ,
			shipped_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ,
			invoiced_at TIMESTAMPTZ,
			canceled_at TIMESTAMPTZ,
			archived_at TIMESTAMPTZ,
			version INT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
		`CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id UUID NOT NULL,
			variant_id UUID,
			label TEXT NOT NULL DEFAULT '',
			quantity INT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			position INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS order_lines_order_idx ON order_lines (order_id, position)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			published BOOLEAN NOT NULL DEFAULT false,
			published_at TIMESTAMPTZ,
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT,
			next_attempt_at TIMESTAMPTZ NOT NULL,
			leased_until TIMESTAMPTZ,
			dead BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS outbox_events_pending_idx ON outbox_events (next_attempt_at) WHERE NOT published AND NOT dead`,
		`CREATE TABLE IF NOT EXISTS locations (
			id UUID PRIMARY KEY,
			parent_id UUID REFERENCES locations(id),
			kind TEXT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
