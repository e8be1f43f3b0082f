package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/stock"
)

type pgStockRepo struct {
	tx *sql.Tx
}

const stockItemColumns = `id, product_id, variant_id, location_id, physical_quantity, reserved_quantity, created_at, updated_at`

func scanStockItem(row interface{ Scan(...any) error }) (*stock.Item, error) {
	var it stock.Item
	var variantID uuid.NullUUID
	err := row.Scan(&it.ID, &it.ProductID, &variantID, &it.LocationID, &it.Physical, &it.Reserved, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if variantID.Valid {
		it.VariantID = &variantID.UUID
	}
	return &it, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (r *pgStockRepo) ItemForUpdate(ctx context.Context, itemID uuid.UUID) (*stock.Item, error) {
	row := r.tx.QueryRowContext(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1 FOR UPDATE`,
		itemID,
	)
	it, err := scanStockItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query stock item: %w", err)
	}
	return it, nil
}

// ItemsForUpdateByProduct locks the full location set for a product. The
// ORDER BY drives both allocation preference and lock-acquisition order, so
// concurrent allocators walk the rows in the same sequence.
func (r *pgStockRepo) ItemsForUpdateByProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]*stock.Item, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items
		 WHERE product_id = $1 AND (($2::uuid IS NULL AND variant_id IS NULL) OR variant_id = $2)
		 ORDER BY physical_quantity - reserved_quantity DESC, location_id ASC
		 FOR UPDATE`,
		productID, nullableUUID(variantID),
	)
	if err != nil {
		return nil, fmt.Errorf("query stock items: %w", err)
	}
	defer rows.Close()

	var items []*stock.Item
	for rows.Next() {
		it, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *pgStockRepo) ItemForUpdateAt(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, locationID uuid.UUID) (*stock.Item, error) {
	row := r.tx.QueryRowContext(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items
		 WHERE product_id = $1 AND location_id = $3
		   AND (($2::uuid IS NULL AND variant_id IS NULL) OR variant_id = $2)
		 FOR UPDATE`,
		productID, nullableUUID(variantID), locationID,
	)
	it, err := scanStockItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query stock item at location: %w", err)
	}
	return it, nil
}

func (r *pgStockRepo) InsertItem(ctx context.Context, item *stock.Item) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO stock_items (id, product_id, variant_id, location_id, physical_quantity, reserved_quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.ProductID, nullableUUID(item.VariantID), item.LocationID,
		item.Physical, item.Reserved, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock item: %w", err)
	}
	return nil
}

func (r *pgStockRepo) UpdateItemQuantities(ctx context.Context, item *stock.Item) error {
	res, err := r.tx.ExecContext(ctx,
		`UPDATE stock_items SET physical_quantity = $2, reserved_quantity = $3, updated_at = $4 WHERE id = $1`,
		item.ID, item.Physical, item.Reserved, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update stock item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stock.ErrItemNotFound
	}
	return nil
}

func (r *pgStockRepo) InsertMovement(ctx context.Context, m *stock.Movement) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO stock_movements (id, item_id, kind, quantity, reason, actor_id, ref_kind, ref_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ItemID, string(m.Kind), m.Quantity, m.Reason, m.ActorID, string(m.RefKind), m.RefID, m.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (r *pgStockRepo) InsertReservation(ctx context.Context, res *stock.Reservation) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO stock_reservations (id, order_id, line_id, item_id, quantity, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.OrderID, res.LineID, res.ItemID, res.Quantity, string(res.Status), res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *pgStockRepo) UpdateReservation(ctx context.Context, res *stock.Reservation) error {
	result, err := r.tx.ExecContext(ctx,
		`UPDATE stock_reservations SET status = $2, updated_at = $3 WHERE id = $1`,
		res.ID, string(res.Status), res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return stock.ErrReservationNotFound
	}
	return nil
}

func (r *pgStockRepo) ReservationsForUpdate(ctx context.Context, orderID uuid.UUID) ([]*stock.Reservation, error) {
	return r.queryReservations(ctx, orderID, true)
}

func (r *pgStockRepo) ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]*stock.Reservation, error) {
	return r.queryReservations(ctx, orderID, false)
}

func (r *pgStockRepo) queryReservations(ctx context.Context, orderID uuid.UUID, locked bool) ([]*stock.Reservation, error) {
	query := `SELECT id, order_id, line_id, item_id, quantity, status, created_at, updated_at
		 FROM stock_reservations WHERE order_id = $1 ORDER BY created_at ASC, id ASC`
	if locked {
		query += ` FOR UPDATE`
	}
	rows, err := r.tx.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []*stock.Reservation
	for rows.Next() {
		var res stock.Reservation
		var status string
		if err := rows.Scan(&res.ID, &res.OrderID, &res.LineID, &res.ItemID, &res.Quantity, &status, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res.Status = stock.ReservationStatus(status)
		out = append(out, &res)
	}
	return out, rows.Err()
}

func (r *pgStockRepo) TotalAvailable(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	var total int
	err := r.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(physical_quantity - reserved_quantity), 0) FROM stock_items
		 WHERE product_id = $1 AND (($2::uuid IS NULL AND variant_id IS NULL) OR variant_id = $2)`,
		productID, nullableUUID(variantID),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum available stock: %w", err)
	}
	return total, nil
}

func (r *pgStockRepo) ItemByID(ctx context.Context, itemID uuid.UUID) (*stock.Item, error) {
	row := r.tx.QueryRowContext(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1`,
		itemID,
	)
	it, err := scanStockItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query stock item: %w", err)
	}
	return it, nil
}

func (r *pgStockRepo) ItemsByProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]*stock.Item, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items
		 WHERE product_id = $1 AND (($2::uuid IS NULL AND variant_id IS NULL) OR variant_id = $2)
		 ORDER BY location_id ASC`,
		productID, nullableUUID(variantID),
	)
	if err != nil {
		return nil, fmt.Errorf("query stock items: %w", err)
	}
	defer rows.Close()

	var items []*stock.Item
	for rows.Next() {
		it, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *pgStockRepo) MovementsByItem(ctx context.Context, itemID uuid.UUID) ([]*stock.Movement, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT id, item_id, kind, quantity, reason, actor_id, ref_kind, ref_id, occurred_at
		 FROM stock_movements WHERE item_id = $1 ORDER BY occurred_at ASC, id ASC`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var out []*stock.Movement
	for rows.Next() {
		var m stock.Movement
		var kind, refKind string
		if err := rows.Scan(&m.ID, &m.ItemID, &kind, &m.Quantity, &m.Reason, &m.ActorID, &refKind, &m.RefID, &m.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Kind = stock.MovementKind(kind)
		m.RefKind = stock.RefKind(refKind)
		out = append(out, &m)
	}
	return out, rows.Err()
}
