package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/order"
)

type pgOrderRepo struct {
	tx *sql.Tx
}

const orderColumns = `id, customer_id, status, discount_percent, discount_approved, credit_check, cancel_reason,
	created_at, updated_at, confirmed_at, ready_at, shipped_at, delivered_at, invoiced_at, canceled_at, archived_at, version`

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	var o order.Order
	var status string
	var confirmedAt, readyAt, shippedAt, deliveredAt, invoicedAt, canceledAt, archivedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.CustomerID, &status, &o.DiscountPercent, &o.DiscountApproved, &o.CreditCheck, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt, &confirmedAt, &readyAt, &shippedAt, &deliveredAt, &invoicedAt, &canceledAt, &archivedAt, &o.Version,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	if confirmedAt.Valid {
		o.ConfirmedAt = &confirmedAt.Time
	}
	if readyAt.Valid {
		o.ReadyAt = &readyAt.Time
	}
	if shippedAt.Valid {
		o.ShippedAt = &shippedAt.Time
	}
	if deliveredAt.Valid {
		o.DeliveredAt = &deliveredAt.Time
	}
	if invoicedAt.Valid {
		o.InvoicedAt = &invoicedAt.Time
	}
	if canceledAt.Valid {
		o.CanceledAt = &canceledAt.Time
	}
	if archivedAt.Valid {
		o.ArchivedAt = &archivedAt.Time
	}
	return &o, nil
}

func (r *pgOrderRepo) loadLines(ctx context.Context, orderID uuid.UUID) ([]order.Line, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT id, product_id, variant_id, label, quantity, unit_price
		 FROM order_lines WHERE order_id = $1 ORDER BY position ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := []order.Line{}
	for rows.Next() {
		var l order.Line
		var variantID uuid.NullUUID
		if err := rows.Scan(&l.ID, &l.ProductID, &variantID, &l.Label, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if variantID.Valid {
			l.VariantID = &variantID.UUID
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgOrderRepo) saveLines(ctx context.Context, orderID uuid.UUID, lines []order.Line) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("clear order lines: %w", err)
	}
	for i, l := range lines {
		_, err := r.tx.ExecContext(ctx,
			`INSERT INTO order_lines (id, order_id, product_id, variant_id, label, quantity, unit_price, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, orderID, l.ProductID, nullableUUID(l.VariantID), l.Label, l.Quantity, l.UnitPrice, i,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (r *pgOrderRepo) InsertOrder(ctx context.Context, o *order.Order) error {
	o.Version = 1
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_id, status, discount_percent, discount_approved, credit_check, cancel_reason,
			created_at, updated_at, confirmed_at, ready_at, shipped_at, delivered_at, invoiced_at, canceled_at, archived_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.CustomerID, string(o.Status), o.DiscountPercent, o.DiscountApproved, o.CreditCheck, o.CancelReason,
		o.CreatedAt, o.UpdatedAt, o.ConfirmedAt, o.ReadyAt, o.ShippedAt, o.DeliveredAt, o.InvoicedAt, o.CanceledAt, o.ArchivedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return r.saveLines(ctx, o.ID, o.Lines)
}

// UpdateOrder persists the aggregate guarded by its loaded version. The row
// is already locked by OrderForUpdate in the same transaction; the version
// check catches callers that skipped the locking read.
func (r *pgOrderRepo) UpdateOrder(ctx context.Context, o *order.Order) error {
	res, err := r.tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, discount_percent = $3, discount_approved = $4, credit_check = $5, cancel_reason = $6,
			updated_at = $7, confirmed_at = $8, ready_at = $9, shipped_at = $10, delivered_at = $11,
			invoiced_at = $12, canceled_at = $13, archived_at = $14, version = version + 1
		 WHERE id = $1 AND version = $15`,
		o.ID, string(o.Status), o.DiscountPercent, o.DiscountApproved, o.CreditCheck, o.CancelReason,
		o.UpdatedAt, o.ConfirmedAt, o.ReadyAt, o.ShippedAt, o.DeliveredAt,
		o.InvoicedAt, o.CanceledAt, o.ArchivedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := r.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return order.ErrOrderNotFound
		}
		return ErrConflict
	}
	o.Version++
	return r.saveLines(ctx, o.ID, o.Lines)
}

func (r *pgOrderRepo) OrderForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return r.finishLoad(ctx, row, id)
}

func (r *pgOrderRepo) OrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return r.finishLoad(ctx, row, id)
}

func (r *pgOrderRepo) finishLoad(ctx context.Context, row *sql.Row, id uuid.UUID) (*order.Order, error) {
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	lines, err := r.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return o, nil
}

func (r *pgOrderRepo) ListOrders(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if !f.IncludeArchived {
		query += " AND archived_at IS NULL"
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		lines, err := r.loadLines(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Lines = lines
	}
	return out, nil
}

func (r *pgOrderRepo) DeleteDraftOrder(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1 AND status = $2`, id, string(order.StatusDraft))
	if err != nil {
		return fmt.Errorf("delete draft order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := r.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return order.ErrOrderNotFound
		}
		return order.ErrNotDraft
	}
	return nil
}
