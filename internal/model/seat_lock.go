package model

import "time"

// SeatLock is a temporary, mutually exclusive claim on one seat coordinate
// of an event while a user completes seat selection.  At most one active
// (non-expired) lock exists per (EventID, SeatRow, SeatNumber); the owner
// may renew it before expiry, anyone else has to wait for the TTL or an
// explicit release.  Version is an optimistic counter bumped on renewal so
// concurrent renewals cannot silently clobber each other.
//
// Fields:
//
//	ID         – primary key identifier.
//	EventID    – event the seat belongs to.
//	SeatRow    – row part of the seat coordinate.
//	SeatNumber – number part of the seat coordinate.
//	UserEmail  – current holder.
//	LockTime   – when the lock was acquired (or last renewed).
//	ExpiryTime – when the lock lapses; rows past this are garbage.
//	Version    – optimistic concurrency counter.
type SeatLock struct {
	ID         uint64    // temporary_seat_locks.id
	EventID    uint64    // temporary_seat_locks.event_id
	SeatRow    int       // temporary_seat_locks.seat_row
	SeatNumber int       // temporary_seat_locks.seat_number
	UserEmail  string    // temporary_seat_locks.user_email
	LockTime   time.Time // temporary_seat_locks.lock_time
	ExpiryTime time.Time // temporary_seat_locks.expiry_time
	Version    uint64    // temporary_seat_locks.version
}

// Expired reports whether the lock has lapsed at the given instant.
func (l *SeatLock) Expired(now time.Time) bool {
	return !l.ExpiryTime.After(now)
}
