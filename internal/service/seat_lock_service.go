package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/event-waitlist/internal/model"
	"github.com/iliyamo/event-waitlist/internal/repository"
)

// ErrSeatUnavailable is returned when a seat is actively locked by someone
// else, or when a concurrent acquisition or renewal won the race.  It is an
// expected outcome, not a failure.
var ErrSeatUnavailable = errors.New("seat is locked by another user")

// SeatLockService manages temporary, TTL-based seat reservations.  A lock
// belongs to exactly one user; the owner renews by locking the same seat
// again, everyone else is refused until the lock expires or is released.
// There is no cancel API beyond owner release and passive TTL expiry.
type SeatLockService struct {
	locks *repository.SeatLockRepo
	ttl   time.Duration
}

// NewSeatLockService wires the service with the lock lifetime.
func NewSeatLockService(locks *repository.SeatLockRepo, ttl time.Duration) *SeatLockService {
	if locks == nil {
		panic("nil repository passed to NewSeatLockService")
	}
	return &SeatLockService{locks: locks, ttl: ttl}
}

// Lock acquires or renews the lock on one seat coordinate for email.
//
// A fresh acquisition inserts under the table's unique key, so of two
// concurrent first-time attempts exactly one succeeds and the loser gets
// ErrSeatUnavailable.  A repeat call by the current owner renews: the
// expiry extends and the version bumps through a compare-and-swap, never
// silently clobbering a concurrent renewal.  Expired rows found along the
// way are reaped inline (amortized GC; the periodic reaper is the safety
// net when no Lock call comes by).
func (s *SeatLockService) Lock(ctx context.Context, eventID uint64, row, number int, email string) (*model.SeatLock, error) {
	now := time.Now().UTC()

	// Amortized global cleanup, same sweep the reaper runs.
	if n, err := s.locks.DeleteExpired(ctx, now); err != nil {
		log.Printf("seatlock: inline cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("seatlock: inline cleanup reaped %d expired lock(s)", n)
	}

	tx, err := s.locks.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// An expired row for this coordinate would trip the unique key on
	// insert; clear it inside the transaction so the key stays truthful.
	if err := s.locks.DeleteExpiredForSeatTx(ctx, tx, eventID, row, number, now); err != nil {
		return nil, err
	}

	existing, err := s.locks.FindActiveTx(ctx, tx, eventID, row, number, now)
	switch {
	case err == nil:
		if existing.UserEmail != email {
			return nil, ErrSeatUnavailable
		}
		// Renewal by the owner: extend expiry, CAS on version.
		renewed, err := s.locks.RenewTx(ctx, tx, existing.ID, existing.Version, now, now.Add(s.ttl))
		if err != nil {
			return nil, err
		}
		if !renewed {
			// a concurrent renewal moved the version first
			return nil, ErrSeatUnavailable
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		existing.LockTime = now
		existing.ExpiryTime = now.Add(s.ttl)
		existing.Version++
		log.Printf("seatlock: %s renewed seat (%d,%d) event=%d until %s",
			email, row, number, eventID, existing.ExpiryTime.Format(time.RFC3339))
		return existing, nil

	case errors.Is(err, repository.ErrNotFound):
		lock := &model.SeatLock{
			EventID:    eventID,
			SeatRow:    row,
			SeatNumber: number,
			UserEmail:  email,
			LockTime:   now,
			ExpiryTime: now.Add(s.ttl),
		}
		if err := s.locks.InsertTx(ctx, tx, lock); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// lost the insert race to another user
				return nil, ErrSeatUnavailable
			}
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		log.Printf("seatlock: %s locked seat (%d,%d) event=%d until %s",
			email, row, number, eventID, lock.ExpiryTime.Format(time.RFC3339))
		return lock, nil

	default:
		return nil, err
	}
}

// Release deletes the lock on a seat if, and only if, the caller owns it.
// No active lock is a no-op; someone else's lock is logged and ignored.
func (s *SeatLockService) Release(ctx context.Context, eventID uint64, row, number int, email string) error {
	now := time.Now().UTC()

	tx, err := s.locks.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	lock, err := s.locks.FindActiveTx(ctx, tx, eventID, row, number, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // nothing to release
		}
		return err
	}
	if lock.UserEmail != email {
		log.Printf("seatlock: %s attempted to release seat (%d,%d) event=%d held by %s; ignored",
			email, row, number, eventID, lock.UserEmail)
		return nil
	}
	if err := s.locks.DeleteTx(ctx, tx, lock.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	log.Printf("seatlock: %s released seat (%d,%d) event=%d", email, row, number, eventID)
	return nil
}

// IsLocked reports whether the seat is actively locked by someone other
// than email.  An expired lock reads as absent whether or not a reaper
// sweep has run yet.
func (s *SeatLockService) IsLocked(ctx context.Context, eventID uint64, row, number int, email string) (bool, error) {
	lock, err := s.locks.FindActive(ctx, eventID, row, number, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return lock.UserEmail != email, nil
}

// LockedSeats returns all currently active locks for an event.
func (s *SeatLockService) LockedSeats(ctx context.Context, eventID uint64) ([]model.SeatLock, error) {
	return s.locks.ActiveByEvent(ctx, eventID, time.Now().UTC())
}

// CleanupExpired deletes every lapsed lock.  Run by the periodic reaper;
// safe to run from several instances at once because deleting an
// already-deleted row is a no-op.
func (s *SeatLockService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.locks.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("seatlock: reaped %d expired lock(s)", n)
	}
	return n, nil
}
