package store

import (
	"context"
	"errors"

	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/outbox"
)

var (
	// ErrLockTimeout is returned when a transaction cannot acquire its row
	// locks within the configured bound. Callers retry with backoff.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrConflict is returned when a write collides with a concurrent
	// modification (stale aggregate version).
	ErrConflict = errors.New("concurrent modification conflict")
)

// Tx bundles the transaction-scoped repositories. One Tx value is valid for
// exactly one WithinTx invocation; dispatcher handlers receive it so their
// writes share the caller's commit or rollback.
type Tx interface {
	Stock() stock.Store
	Orders() order.Store
	Outbox() outbox.Store
	Locations() location.Store
}

// Store opens units of work. Implementations guarantee that fn's writes
// commit atomically, and roll back completely when fn returns an error.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
