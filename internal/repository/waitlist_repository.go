package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-waitlist/internal/model"
)

// WaitlistRepo provides data access to the waitlist_entries table.  Position
// bookkeeping is its central concern: positions of one event stay a dense
// 1..N sequence, which is why every mutation of the queue happens through a
// transaction that also holds the event row lock (see EventRepo.LockTx).
// All timestamp comparisons are performed in UTC – the DSN pins the session
// to UTC so DATETIME columns round-trip cleanly.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the provided database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

// DB exposes the underlying sql.DB for callers that begin transactions
// spanning multiple repositories.
func (r *WaitlistRepo) DB() *sql.DB { return r.db }

const waitlistColumns = `id, event_id, user_email, position, status, notification_sent, expires_at, created_at, updated_at`

// FindByEventAndEmail fetches the entry for one participant of one event.
// Returns ErrNotFound when the participant has no entry.
func (r *WaitlistRepo) FindByEventAndEmail(ctx context.Context, eventID uint64, email string) (*model.WaitlistEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE event_id = ? AND user_email = ?`,
		eventID, email)
	return scanWaitlistRow(row)
}

// FindByEventAndEmailTx is FindByEventAndEmail inside the caller's
// transaction, locking the returned row so a concurrent confirm/leave on
// the same entry blocks until this transaction finishes.
func (r *WaitlistRepo) FindByEventAndEmailTx(ctx context.Context, tx *sql.Tx, eventID uint64, email string) (*model.WaitlistEntry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE event_id = ? AND user_email = ? FOR UPDATE`,
		eventID, email)
	return scanWaitlistRow(row)
}

// MaxPositionTx returns the highest position ever handed out for an event,
// or 0 when the queue is empty.  The next joiner takes max+1; positions are
// computed over entries of any status so a position is never reused while
// its entry still exists.
func (r *WaitlistRepo) MaxPositionTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int, error) {
	var max int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM waitlist_entries WHERE event_id = ?`,
		eventID).Scan(&max)
	return max, err
}

// InsertTx inserts a new entry and populates its generated ID.  The caller
// must already hold the event row lock so two concurrent joins cannot
// compute the same position.
func (r *WaitlistRepo) InsertTx(ctx context.Context, tx *sql.Tx, e *model.WaitlistEntry) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist_entries (event_id, user_email, position, status, notification_sent)
		 VALUES (?, ?, ?, ?, ?)`,
		e.EventID, e.UserEmail, e.Position, e.Status, e.NotificationSent)
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
	e.ID = uint64(id)
	return nil
}

// DeleteTx removes one entry by primary key.
func (r *WaitlistRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = ?`, id)
	return err
}

// CompactAfterTx closes the gap left by a deleted entry: every entry of the
// event with a higher position slides down by one.  Must run in the same
// transaction as the delete, under the event row lock, so two concurrent
// leaves cannot double-decrement.
func (r *WaitlistRepo) CompactAfterTx(ctx context.Context, tx *sql.Tx, eventID uint64, deletedPosition int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET position = position - 1, updated_at = UTC_TIMESTAMP()
		 WHERE event_id = ? AND position > ?`,
		eventID, deletedPosition)
	return err
}

// WaitingByEventTx returns the WAITING entries of an event in position
// order (earliest joiner first).  Callers hold the event row lock, so the
// snapshot cannot race with a concurrent redistribution.
func (r *WaitlistRepo) WaitingByEventTx(ctx context.Context, tx *sql.Tx, eventID uint64) ([]model.WaitlistEntry, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE event_id = ? AND status = ? ORDER BY position ASC`,
		eventID, model.WaitlistStatusWaiting)
	if err != nil {
		return nil, err
	}
	return collectWaitlistRows(rows)
}

// PromoteTx flips one WAITING entry straight to CONFIRMED, marking the
// notification as sent.  The status guard makes a replayed promotion a
// no-op: rows affected is 0 when the entry already moved on.
func (r *WaitlistRepo) PromoteTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?, notification_sent = 1, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.WaitlistStatusConfirmed, id, model.WaitlistStatusWaiting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkNotifiedTx offers a slot to a WAITING entry: status becomes NOTIFIED
// and the confirmation deadline is recorded.
func (r *WaitlistRepo) MarkNotifiedTx(ctx context.Context, tx *sql.Tx, id uint64, expiresAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?, notification_sent = 1, expires_at = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.WaitlistStatusNotified, expiresAt.UTC(), id, model.WaitlistStatusWaiting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ConfirmTx moves a NOTIFIED entry to CONFIRMED.
func (r *WaitlistRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		model.WaitlistStatusConfirmed, id)
	return err
}

// CountWaiting returns how many participants are currently WAITING for an
// event.
func (r *WaitlistRepo) CountWaiting(ctx context.Context, eventID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE event_id = ? AND status = ?`,
		eventID, model.WaitlistStatusWaiting).Scan(&n)
	return n, err
}

// ExpiredNotified returns the NOTIFIED entries whose confirmation deadline
// passed before now.  The sweep marks each of them EXPIRED.
func (r *WaitlistRepo) ExpiredNotified(ctx context.Context, now time.Time) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE status = ? AND expires_at < ?`,
		model.WaitlistStatusNotified, now.UTC())
	if err != nil {
		return nil, err
	}
	return collectWaitlistRows(rows)
}

// MarkExpired retires a NOTIFIED entry whose deadline passed.  The status
// guard keeps duplicate sweeps (several instances running the same timer)
// idempotent – a second run affects zero rows and that is not an error.
func (r *WaitlistRepo) MarkExpired(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.WaitlistStatusExpired, id, model.WaitlistStatusNotified)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearAll wipes every waitlist entry across all events (administrative
// reset delivered over the messaging bridge).  Returns the number of rows
// removed.
func (r *WaitlistRepo) ClearAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM waitlist_entries`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanWaitlistRow(row *sql.Row) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var expires sql.NullTime
	err := row.Scan(&e.ID, &e.EventID, &e.UserEmail, &e.Position, &e.Status,
		&e.NotificationSent, &expires, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	return &e, nil
}

func collectWaitlistRows(rows *sql.Rows) ([]model.WaitlistEntry, error) {
	defer rows.Close()
	var entries []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		var expires sql.NullTime
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserEmail, &e.Position, &e.Status,
			&e.NotificationSent, &expires, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			e.ExpiresAt = &t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
