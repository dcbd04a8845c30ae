package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-waitlist/internal/model"
)

// SeatLockRepo provides data access to the temporary_seat_locks table.  The
// table carries a unique key on (event_id, seat_row, seat_number): of two
// concurrent first-time acquisitions for the same coordinate exactly one
// insert succeeds and the other surfaces ErrDuplicate.  Because the unique
// key spans live and lapsed rows alike, acquisition paths must delete
// expired rows for the coordinate before inserting (see DeleteExpiredForSeatTx).
type SeatLockRepo struct {
	db *sql.DB
}

// NewSeatLockRepo returns a new SeatLockRepo bound to the provided database.
func NewSeatLockRepo(db *sql.DB) *SeatLockRepo { return &SeatLockRepo{db: db} }

// DB exposes the underlying sql.DB for transaction control.
func (r *SeatLockRepo) DB() *sql.DB { return r.db }

const seatLockColumns = `id, event_id, seat_row, seat_number, user_email, lock_time, expiry_time, version`

// FindActiveTx fetches the active (non-expired) lock on one seat coordinate,
// locking the row for the remainder of the transaction.  Returns ErrNotFound
// when the seat is free.
func (r *SeatLockRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, eventID uint64, row, number int, now time.Time) (*model.SeatLock, error) {
	res := tx.QueryRowContext(ctx,
		`SELECT `+seatLockColumns+` FROM temporary_seat_locks
		 WHERE event_id = ? AND seat_row = ? AND seat_number = ? AND expiry_time > ? FOR UPDATE`,
		eventID, row, number, now.UTC())
	return scanSeatLock(res)
}

// FindActive is FindActiveTx without row locking, for read-only checks.
func (r *SeatLockRepo) FindActive(ctx context.Context, eventID uint64, row, number int, now time.Time) (*model.SeatLock, error) {
	res := r.db.QueryRowContext(ctx,
		`SELECT `+seatLockColumns+` FROM temporary_seat_locks
		 WHERE event_id = ? AND seat_row = ? AND seat_number = ? AND expiry_time > ?`,
		eventID, row, number, now.UTC())
	return scanSeatLock(res)
}

// InsertTx creates a fresh lock.  A duplicate-key failure means another
// transaction created an active lock for the coordinate first; callers
// treat that as "seat unavailable", never as corruption.
func (r *SeatLockRepo) InsertTx(ctx context.Context, tx *sql.Tx, l *model.SeatLock) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO temporary_seat_locks (event_id, seat_row, seat_number, user_email, lock_time, expiry_time, version)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		l.EventID, l.SeatRow, l.SeatNumber, l.UserEmail, l.LockTime.UTC(), l.ExpiryTime.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	l.Version = 1
	return nil
}

// RenewTx extends the owner's lock with a compare-and-swap on the version
// column: the write only lands if nobody renewed in between.  Returns false
// when the version moved, in which case the caller should treat the renewal
// as lost to a concurrent one.
func (r *SeatLockRepo) RenewTx(ctx context.Context, tx *sql.Tx, id uint64, version uint64, lockTime, expiryTime time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE temporary_seat_locks SET lock_time = ?, expiry_time = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		lockTime.UTC(), expiryTime.UTC(), id, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteTx removes one lock by primary key (owner release).
func (r *SeatLockRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM temporary_seat_locks WHERE id = ?`, id)
	return err
}

// DeleteExpiredForSeatTx clears lapsed rows for one coordinate so a fresh
// insert does not trip over the unique key.  Runs inside the acquisition
// transaction.
func (r *SeatLockRepo) DeleteExpiredForSeatTx(ctx context.Context, tx *sql.Tx, eventID uint64, row, number int, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM temporary_seat_locks
		 WHERE event_id = ? AND seat_row = ? AND seat_number = ? AND expiry_time <= ?`,
		eventID, row, number, now.UTC())
	return err
}

// DeleteExpired removes every lock whose expiry has passed and returns the
// number of rows reaped.  Deleting rows another instance already reaped is
// a no-op, which keeps duplicate sweeps harmless.
func (r *SeatLockRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM temporary_seat_locks WHERE expiry_time <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActiveByEvent returns all currently active locks for an event.
func (r *SeatLockRepo) ActiveByEvent(ctx context.Context, eventID uint64, now time.Time) ([]model.SeatLock, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seatLockColumns+` FROM temporary_seat_locks
		 WHERE event_id = ? AND expiry_time > ?`,
		eventID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locks []model.SeatLock
	for rows.Next() {
		var l model.SeatLock
		if err := rows.Scan(&l.ID, &l.EventID, &l.SeatRow, &l.SeatNumber,
			&l.UserEmail, &l.LockTime, &l.ExpiryTime, &l.Version); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locks, nil
}

func scanSeatLock(row *sql.Row) (*model.SeatLock, error) {
	var l model.SeatLock
	err := row.Scan(&l.ID, &l.EventID, &l.SeatRow, &l.SeatNumber,
		&l.UserEmail, &l.LockTime, &l.ExpiryTime, &l.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
