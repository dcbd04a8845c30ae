// Package queue defines the message payloads exchanged over the message
// broker and the background consumers for the inbound waitlist queues.  The
// bridge is at-least-once: every inbound handler is written so a redelivered
// message changes nothing the second time.
package queue

import "time"

// Queue names of the messaging bridge.  Inbound: redistribution triggers and
// the administrative clear-all.  Outbound: invitation materialization,
// automatic confirmation of promoted entrants and offer notifications.
const (
	QueueWaitlistRedistribution    = "waitlist.redistribution"
	QueueWaitlistClearAll          = "waitlist.clear.all"
	QueueWaitlistInvitationCreated = "waitlist.invitation.created"
	QueueInvitationAutoConfirm     = "invitation.auto.confirm"
	QueueWaitlistNotification      = "waitlist.notification"
)

// WaitlistInvitationMessage asks the invitation domain to materialize a
// WAITLIST-status invitation for a participant who just joined the queue
// (or confirmed an offered spot).
type WaitlistInvitationMessage struct {
	EventID    uint64 `json:"eventId"`
	EventTitle string `json:"eventTitle"`
	UserEmail  string `json:"userEmail"`
}

// AutoConfirmMessage promotes a waitlist entrant to a confirmed invitation.
// Row and Number carry a specific freed seat coordinate and are only set on
// the first promoted entrant of a redistribution run; the invitation domain
// assigns seats to the rest.
type AutoConfirmMessage struct {
	EventID   uint64 `json:"eventId"`
	UserEmail string `json:"userEmail"`
	Row       *int   `json:"row,omitempty"`
	Number    *int   `json:"number,omitempty"`
}

// WaitlistNotificationMessage tells the notification domain that a spot was
// offered to an entrant, including the deadline by which the entrant must
// confirm.
type WaitlistNotificationMessage struct {
	EventID       uint64    `json:"eventId"`
	EventTitle    string    `json:"eventTitle"`
	EventDate     time.Time `json:"eventDate"`
	EventLocation string    `json:"eventLocation"`
	UserEmail     string    `json:"userEmail"`
	Position      int       `json:"position"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// RedistributionMessage is delivered when capacity frees up (a cancellation
// in the invitation domain) and triggers a promotion run.  Row and Number
// optionally name the exact seat that was vacated.
type RedistributionMessage struct {
	EventID        uint64 `json:"eventId"`
	AvailableSlots int    `json:"availableSlots"`
	Row            *int   `json:"row,omitempty"`
	Number         *int   `json:"number,omitempty"`
}
