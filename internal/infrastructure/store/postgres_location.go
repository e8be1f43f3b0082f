package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/domain/location"
)

type pgLocationRepo struct {
	tx *sql.Tx
}

func scanLocation(row interface{ Scan(...any) error }) (*location.Location, error) {
	var loc location.Location
	var parentID uuid.NullUUID
	var kind string
	if err := row.Scan(&loc.ID, &parentID, &kind, &loc.Code, &loc.Name, &loc.CreatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		loc.ParentID = &parentID.UUID
	}
	loc.Kind = location.Kind(kind)
	return &loc, nil
}

func (r *pgLocationRepo) InsertLocation(ctx context.Context, loc *location.Location) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO locations (id, parent_id, kind, code, name, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		loc.ID, nullableUUID(loc.ParentID), string(loc.Kind), loc.Code, loc.Name, loc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

func (r *pgLocationRepo) LocationByID(ctx context.Context, id uuid.UUID) (*location.Location, error) {
	row := r.tx.QueryRowContext(ctx,
		`SELECT id, parent_id, kind, code, name, created_at FROM locations WHERE id = $1`, id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, location.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query location: %w", err)
	}
	return loc, nil
}

func (r *pgLocationRepo) LocationsByParent(ctx context.Context, parentID uuid.UUID) ([]*location.Location, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT id, parent_id, kind, code, name, created_at FROM locations WHERE parent_id = $1 ORDER BY code ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

func (r *pgLocationRepo) AllLocations(ctx context.Context) ([]*location.Location, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT id, parent_id, kind, code, name, created_at FROM locations ORDER BY created_at ASC, code ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

func collectLocations(rows *sql.Rows) ([]*location.Location, error) {
	var out []*location.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}
