// Package repository contains data access logic for the waitlist and
// seat-lock subsystems.  Repositories are thin structs over *sql.DB; methods
// suffixed Tx run against a caller-supplied transaction so services can
// compose several repository calls into one atomic unit.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-waitlist/internal/model"
)

// EventRepo reads the event rows the waitlist subsystem depends on.  Event
// administration (create/update/delete) belongs to a different surface and
// is deliberately absent here.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `id, title, event_date, location, max_capacity, waitlist_enabled, created_at, updated_at`

// GetByID fetches a single event.  Returns ErrNotFound when no row exists.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// GetByIDTx is GetByID inside the caller's transaction.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// LockTx takes the row lock on an event, serializing every mutation of that
// event's waiting queue (join ordering, leave compaction, redistribution)
// across service instances.  Returns ErrNotFound when the event does not
// exist.  The lock is held until the transaction commits or rolls back.
func (r *EventRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	var got uint64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM events WHERE id = ? FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanEvent(row *sql.Row) (*model.Event, error) {
	var ev model.Event
	var maxCap sql.NullInt64
	err := row.Scan(&ev.ID, &ev.Title, &ev.EventDate, &ev.Location,
		&maxCap, &ev.WaitlistEnabled, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if maxCap.Valid {
		v := uint32(maxCap.Int64)
		ev.MaxCapacity = &v
	}
	return &ev, nil
}
