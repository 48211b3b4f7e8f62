package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Remindus/internal/domain/event"
)

var _ event.Repo = (*EventRepo)(nil)

// EventRepo is a read-only view of the calendar tables owned by the CRUD
// side of the application.
type EventRepo struct{ db *DB }

func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

const (
	qEventByID = `
SELECT id, owner_id, title, start_at, timezone, cancelled, created_at
FROM events
WHERE id = $1;`

	qEventsBetween = `
SELECT id, owner_id, title, start_at, timezone, cancelled, created_at
FROM events
WHERE cancelled = FALSE AND start_at >= $1 AND start_at < $2
ORDER BY start_at;`

	qEventParticipants = `
SELECT owner_id FROM events WHERE id = $1
UNION
SELECT user_id FROM event_participants WHERE event_id = $1;`
)

func (r *EventRepo) GetByID(ctx context.Context, id int64) (*event.Event, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var e event.Event
	if err := r.db.Pool.QueryRow(ctx, qEventByID, id).Scan(
		&e.ID, &e.OwnerID, &e.Title, &e.StartAt, &e.Timezone, &e.Cancelled, &e.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("query event: %w", err)
	}
	return &e, nil
}

func (r *EventRepo) ListStartingBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qEventsBetween, from, to)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var e event.Event
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.StartAt, &e.Timezone, &e.Cancelled, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *EventRepo) ParticipantIDs(ctx context.Context, eventID int64) ([]int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qEventParticipants, eventID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
