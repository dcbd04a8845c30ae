package model

import "time"

// Event represents the subset of event data the waitlist subsystem needs.
// Full event CRUD lives in the event-administration surface; the waitlist
// only reads the title (for outbound messages), the waitlist flag and the
// capacity.
//
// Fields:
//
//	ID              – primary key identifier.
//	Title           – human-readable event name carried in messages.
//	EventDate       – when the event takes place.
//	Location        – where the event takes place.
//	MaxCapacity     – nil means unlimited; used by the fullness check.
//	WaitlistEnabled – joining and redistribution are refused when false.
type Event struct {
	ID              uint64     // events.id
	Title           string     // events.title
	EventDate       time.Time  // events.event_date
	Location        string     // events.location
	MaxCapacity     *uint32    // events.max_capacity (nullable)
	WaitlistEnabled bool       // events.waitlist_enabled
	CreatedAt       time.Time  // events.created_at
	UpdatedAt       time.Time  // events.updated_at
}
