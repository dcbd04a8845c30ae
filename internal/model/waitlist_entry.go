package model

import "time"

// Waitlist entry statuses.  WAITING and NOTIFIED are the only states a
// participant can leave from; CONFIRMED and EXPIRED are terminal for the
// entry (an expired entrant must join again to re-enter the queue).
const (
	WaitlistStatusWaiting   = "WAITING"
	WaitlistStatusNotified  = "NOTIFIED"
	WaitlistStatusConfirmed = "CONFIRMED"
	WaitlistStatusExpired   = "EXPIRED"
)

// WaitlistEntry represents one participant's place in the waiting queue of
// one event.  (EventID, UserEmail) is unique; Position is a positive integer
// that stays dense (1..N, no gaps) across the WAITING entries of an event –
// the repository compacts positions whenever an entry is removed.
//
// Fields:
//
//	ID               – primary key identifier.
//	EventID          – event this entry queues for.
//	UserEmail        – participant identity shared with the invitation domain.
//	Position         – 1-based place in line; ascending = earlier joiner.
//	Status           – WAITING, NOTIFIED, CONFIRMED or EXPIRED.
//	NotificationSent – whether the participant has been told about an offer.
//	ExpiresAt        – confirmation deadline, set when the entry is NOTIFIED.
//	CreatedAt        – when the participant joined.
//	UpdatedAt        – last state change.
type WaitlistEntry struct {
	ID               uint64     // waitlist_entries.id
	EventID          uint64     // waitlist_entries.event_id
	UserEmail        string     // waitlist_entries.user_email
	Position         int        // waitlist_entries.position
	Status           string     // waitlist_entries.status
	NotificationSent bool       // waitlist_entries.notification_sent
	ExpiresAt        *time.Time // waitlist_entries.expires_at (nullable)
	CreatedAt        time.Time  // waitlist_entries.created_at
	UpdatedAt        time.Time  // waitlist_entries.updated_at
}

// Terminal reports whether the entry can never change state again.
func (e *WaitlistEntry) Terminal() bool {
	return e.Status == WaitlistStatusConfirmed || e.Status == WaitlistStatusExpired
}
