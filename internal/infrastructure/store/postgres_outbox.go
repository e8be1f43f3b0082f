package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/order-fulfillment/internal/outbox"
)

type pgOutboxRepo struct {
	tx *sql.Tx
}

// InsertOutboxEvent shares the producing transaction; it is the only outbox
// write that happens on the domain path.
func (r *pgOutboxRepo) InsertOutboxEvent(ctx context.Context, e *outbox.Event) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, event_type, aggregate_id, payload, created_at, published, attempts, next_attempt_at, dead)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.EventType, e.AggregateID, []byte(e.Payload), e.CreatedAt, e.Published, e.Attempts, e.NextAttemptAt, e.Dead,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

const outboxColumns = `id, event_type, aggregate_id, payload, created_at, published, published_at, attempts, last_error, next_attempt_at, leased_until, dead`

func scanOutboxEvent(row interface{ Scan(...any) error }) (*outbox.Event, error) {
	var e outbox.Event
	var payload []byte
	var publishedAt, leasedUntil sql.NullTime
	var lastError sql.NullString
	err := row.Scan(&e.ID, &e.EventType, &e.AggregateID, &payload, &e.CreatedAt,
		&e.Published, &publishedAt, &e.Attempts, &lastError, &e.NextAttemptAt, &leasedUntil, &e.Dead)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	if publishedAt.Valid {
		e.PublishedAt = &publishedAt.Time
	}
	if leasedUntil.Valid {
		e.LeasedUntil = &leasedUntil.Time
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	return &e, nil
}

// ClaimBatch leases due rows for this worker in one statement. SKIP LOCKED
// keeps two live relays from claiming the same rows; the lease keeps rows
// held by a crashed relay out of rotation until it expires.
func (s *PostgresStore) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*outbox.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE outbox_events SET leased_until = now() + $2::interval
		 WHERE id IN (
			SELECT id FROM outbox_events
			WHERE NOT published AND NOT dead AND next_attempt_at <= now()
			  AND (leased_until IS NULL OR leased_until < now())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+outboxColumns,
		limit, fmt.Sprintf("%f seconds", lease.Seconds()),
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var out []*outbox.Event
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING order is unspecified; deliver in creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET published = true, published_at = now(), leased_until = NULL, last_error = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return outbox.ErrEventNotFound
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time, dead bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = $2, last_error = $3, next_attempt_at = $4, dead = $5, leased_until = NULL WHERE id = $1`,
		id, attempts, lastError, nextAttemptAt, dead,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return outbox.ErrEventNotFound
	}
	return nil
}

func (s *PostgresStore) RequeueDead(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET dead = false, attempts = 0, last_error = NULL, next_attempt_at = now(), leased_until = NULL
		 WHERE id = $1 AND dead`,
		id,
	)
	if err != nil {
		return fmt.Errorf("requeue outbox event: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM outbox_events WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check outbox event exists: %w", err)
		}
		if !exists {
			return outbox.ErrEventNotFound
		}
		return outbox.ErrNotDead
	}
	return nil
}

func (s *PostgresStore) OutboxStats(ctx context.Context) (outbox.Stats, error) {
	var stats outbox.Stats
	var oldest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE NOT published AND NOT dead),
			COUNT(*) FILTER (WHERE published),
			COUNT(*) FILTER (WHERE dead),
			MIN(created_at) FILTER (WHERE NOT published AND NOT dead)
		 FROM outbox_events`,
	).Scan(&stats.Pending, &stats.Published, &stats.Dead, &oldest)
	if err != nil {
		return outbox.Stats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPending = &oldest.Time
	}
	return stats, nil
}

func (s *PostgresStore) DeadEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events WHERE dead ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query dead outbox events: %w", err)
	}
	defer rows.Close()

	var out []*outbox.Event
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
