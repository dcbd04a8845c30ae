// Package service implements the waitlist and seat-lock business logic on
// top of the repository layer.  Services orchestrate transactions; all
// mutual exclusion is enforced by the store (event row locks, unique keys,
// version checks) so correctness holds across service instances, never by
// in-process synchronization alone.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/event-waitlist/internal/model"
	q "github.com/iliyamo/event-waitlist/internal/queue"
	"github.com/iliyamo/event-waitlist/internal/repository"
)

// Sentinel errors surfaced to handlers.  Validation failures map to
// 400/404, state conflicts to 409.
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrWaitlistDisabled  = errors.New("waitlist is not enabled for this event")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrAlreadyWaiting    = errors.New("already on the waitlist for this event")
	ErrNotWaiting        = errors.New("not on the waitlist for this event")
	ErrEntryNotFound     = errors.New("waitlist entry not found")
	ErrCannotConfirm     = errors.New("entry is not awaiting confirmation")
	ErrConfirmExpired    = errors.New("confirmation deadline has passed")
	ErrNothingToOffer    = errors.New("no waiting entries to notify")
)

// CapacityOracle is the narrow contract to the invitation domain: whether a
// participant is already registered and how many confirmed participants an
// event holds.  Implemented by client.InvitationClient.
type CapacityOracle interface {
	IsUserRegistered(ctx context.Context, eventID uint64, email string) (bool, error)
	ConfirmedCount(ctx context.Context, eventID uint64) (int64, error)
}

// WaitlistService owns the waiting queue of every event: dense position
// allocation on join/leave, offer/confirm/expire transitions and the
// redistribution engine that promotes entrants when capacity frees up.
type WaitlistService struct {
	events  *repository.EventRepo
	entries *repository.WaitlistRepo
	oracle  CapacityOracle
	bridge  BridgePublisher

	batchLimit int           // max promotions per redistribution run
	notifyTTL  time.Duration // confirmation window of an offered spot
}

// NewWaitlistService wires the service.  batchLimit caps one redistribution
// run; notifyTTL is how long a NOTIFIED entrant may take to confirm.
func NewWaitlistService(events *repository.EventRepo, entries *repository.WaitlistRepo,
	oracle CapacityOracle, bridge BridgePublisher, batchLimit int, notifyTTL time.Duration) *WaitlistService {
	if events == nil || entries == nil || oracle == nil || bridge == nil {
		panic("nil dependency passed to NewWaitlistService")
	}
	return &WaitlistService{
		events:     events,
		entries:    entries,
		oracle:     oracle,
		bridge:     bridge,
		batchLimit: batchLimit,
		notifyTTL:  notifyTTL,
	}
}

// Join appends a participant to the event's waiting queue at position
// max+1, returning the entry together with the event title for the response
// payload.  Joining twice without leaving is idempotent: the existing
// WAITING entry is returned unchanged.  A terminal EXPIRED entry does not
// block re-entry; it is replaced by a fresh entry at the tail.
func (s *WaitlistService) Join(ctx context.Context, eventID uint64, email string) (*model.WaitlistEntry, string, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrEventNotFound
		}
		return nil, "", err
	}
	if !event.WaitlistEnabled {
		return nil, "", ErrWaitlistDisabled
	}

	registered, err := s.oracle.IsUserRegistered(ctx, eventID, email)
	if err != nil {
		// Oracle unreachable: the check degrades to "unknown" and the join
		// proceeds; the worst case is a duplicate the invitation domain
		// already rejects on its side.
		log.Printf("waitlist: registration check failed for %s event=%d: %v", email, eventID, err)
		registered = false
	}
	if registered {
		return nil, "", ErrAlreadyRegistered
	}

	tx, err := s.entries.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Serialize queue mutations for this event across instances.
	if err := s.events.LockTx(ctx, tx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrEventNotFound
		}
		return nil, "", err
	}

	existing, err := s.entries.FindByEventAndEmailTx(ctx, tx, eventID, email)
	switch {
	case err == nil:
		switch existing.Status {
		case model.WaitlistStatusWaiting:
			// Idempotent re-join: same entry, no new position.
			if err := tx.Commit(); err != nil {
				return nil, "", err
			}
			committed = true
			return existing, event.Title, nil
		case model.WaitlistStatusNotified:
			return nil, "", ErrAlreadyWaiting
		case model.WaitlistStatusConfirmed:
			return nil, "", ErrAlreadyRegistered
		case model.WaitlistStatusExpired:
			// Terminal entry: remove it (compacting the queue) and fall
			// through to a fresh insert at the tail.
			if err := s.entries.DeleteTx(ctx, tx, existing.ID); err != nil {
				return nil, "", err
			}
			if err := s.entries.CompactAfterTx(ctx, tx, eventID, existing.Position); err != nil {
				return nil, "", err
			}
		}
	case errors.Is(err, repository.ErrNotFound):
		// first join, nothing to do
	default:
		return nil, "", err
	}

	max, err := s.entries.MaxPositionTx(ctx, tx, eventID)
	if err != nil {
		return nil, "", err
	}
	entry := &model.WaitlistEntry{
		EventID:   eventID,
		UserEmail: email,
		Position:  max + 1,
		Status:    model.WaitlistStatusWaiting,
	}
	if err := s.entries.InsertTx(ctx, tx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", ErrAlreadyWaiting
		}
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	committed = true

	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	log.Printf("waitlist: %s joined event=%d at position=%d", email, eventID, entry.Position)

	// Materialize the WAITLIST invitation downstream.  Best-effort: the
	// committed entry is authoritative.
	if err := s.bridge.PublishInvitationCreated(ctx, q.WaitlistInvitationMessage{
		EventID:    eventID,
		EventTitle: event.Title,
		UserEmail:  email,
	}); err != nil {
		log.Printf("waitlist: invitation-created publish failed for %s event=%d: %v", email, eventID, err)
	}
	return entry, event.Title, nil
}

// Leave removes a WAITING or NOTIFIED entry and compacts the positions
// behind it, all in one transaction under the event row lock so concurrent
// leaves cannot double-decrement.
func (s *WaitlistService) Leave(ctx context.Context, eventID uint64, email string) error {
	tx, err := s.entries.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.events.LockTx(ctx, tx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	entry, err := s.entries.FindByEventAndEmailTx(ctx, tx, eventID, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotWaiting
		}
		return err
	}
	if entry.Terminal() {
		return ErrNotWaiting
	}
	if err := s.entries.DeleteTx(ctx, tx, entry.ID); err != nil {
		return err
	}
	if err := s.entries.CompactAfterTx(ctx, tx, eventID, entry.Position); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	log.Printf("waitlist: %s left event=%d (was position=%d)", email, eventID, entry.Position)
	return nil
}

// Confirm claims an offered spot.  Only a NOTIFIED entry inside its
// confirmation window can be confirmed.
func (s *WaitlistService) Confirm(ctx context.Context, eventID uint64, email string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}

	tx, err := s.entries.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	entry, err := s.entries.FindByEventAndEmailTx(ctx, tx, eventID, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEntryNotFound
		}
		return err
	}
	if entry.Status != model.WaitlistStatusNotified {
		return ErrCannotConfirm
	}
	if entry.ExpiresAt != nil && entry.ExpiresAt.Before(time.Now().UTC()) {
		return ErrConfirmExpired
	}
	if err := s.entries.ConfirmTx(ctx, tx, entry.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	log.Printf("waitlist: %s confirmed spot for event=%d", email, eventID)

	if err := s.bridge.PublishInvitationCreated(ctx, q.WaitlistInvitationMessage{
		EventID:    eventID,
		EventTitle: event.Title,
		UserEmail:  email,
	}); err != nil {
		log.Printf("waitlist: invitation-created publish failed for %s event=%d: %v", email, eventID, err)
	}
	return nil
}

// Notify offers the next free spot to the head of the waiting queue: the
// lowest-position WAITING entry becomes NOTIFIED with a confirmation
// deadline, and the notification domain is told about the offer.
func (s *WaitlistService) Notify(ctx context.Context, eventID uint64) (*model.WaitlistEntry, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if !event.WaitlistEnabled {
		return nil, ErrWaitlistDisabled
	}

	tx, err := s.entries.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.events.LockTx(ctx, tx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	waiting, err := s.entries.WaitingByEventTx(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, ErrNothingToOffer
	}
	head := waiting[0]
	expiresAt := time.Now().UTC().Add(s.notifyTTL)
	if _, err := s.entries.MarkNotifiedTx(ctx, tx, head.ID, expiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	head.Status = model.WaitlistStatusNotified
	head.NotificationSent = true
	head.ExpiresAt = &expiresAt
	log.Printf("waitlist: offered spot to %s event=%d position=%d deadline=%s",
		head.UserEmail, eventID, head.Position, expiresAt.Format(time.RFC3339))

	if err := s.bridge.PublishWaitlistNotification(ctx, q.WaitlistNotificationMessage{
		EventID:       eventID,
		EventTitle:    event.Title,
		EventDate:     event.EventDate,
		EventLocation: event.Location,
		UserEmail:     head.UserEmail,
		Position:      head.Position,
		ExpiresAt:     expiresAt,
	}); err != nil {
		log.Printf("waitlist: notification publish failed for %s event=%d: %v", head.UserEmail, eventID, err)
	}
	return &head, nil
}

// Redistribute promotes up to availableSlots waiting entrants (capped by
// the batch limit) in position order.  Only the first promoted entrant
// inherits the vacated seat coordinate, when one is supplied; the rest are
// seated downstream.  The event row lock makes concurrent invocations for
// the same event re-read current WAITING state, so a duplicate trigger
// cannot double-promote.  A no-op when waitlisting is disabled or nobody is
// waiting.
func (s *WaitlistService) Redistribute(ctx context.Context, eventID uint64, availableSlots int, row, number *int) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	if !event.WaitlistEnabled {
		log.Printf("waitlist: redistribution skipped, waitlist disabled for event=%d", eventID)
		return nil
	}

	slots := availableSlots
	if slots > s.batchLimit {
		slots = s.batchLimit
	}

	tx, err := s.entries.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.events.LockTx(ctx, tx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	waiting, err := s.entries.WaitingByEventTx(ctx, tx, eventID)
	if err != nil {
		return err
	}
	toPromote := slots
	if len(waiting) < toPromote {
		toPromote = len(waiting)
	}
	if toPromote == 0 {
		log.Printf("waitlist: nobody waiting for event=%d", eventID)
		return nil
	}

	promoted := make([]model.WaitlistEntry, 0, toPromote)
	for i := 0; i < toPromote; i++ {
		ok, err := s.entries.PromoteTx(ctx, tx, waiting[i].ID)
		if err != nil {
			return err
		}
		if ok {
			promoted = append(promoted, waiting[i])
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	// Downstream confirmation is best-effort at-least-once: a publish
	// failure is logged and does not abort the rest, the promotions above
	// are already committed.
	for i, entry := range promoted {
		msg := q.AutoConfirmMessage{EventID: eventID, UserEmail: entry.UserEmail}
		if i == 0 {
			msg.Row = row
			msg.Number = number
		}
		if err := s.bridge.PublishAutoConfirm(ctx, msg); err != nil {
			log.Printf("waitlist: auto-confirm publish failed for %s event=%d: %v", entry.UserEmail, eventID, err)
			continue
		}
		log.Printf("waitlist: promoted %s event=%d (position was %d)", entry.UserEmail, eventID, entry.Position)
	}
	log.Printf("waitlist: redistributed %d slot(s) for event=%d, %d promotion(s)", slots, eventID, len(promoted))
	return nil
}

// ProcessExpiredNotifications retires NOTIFIED entries whose confirmation
// deadline passed and re-offers each reclaimed slot through a fresh
// redistribution.  A failure on one entry never stops the rest of the
// batch.  Expired entrants are not re-queued; they must join again.
func (s *WaitlistService) ProcessExpiredNotifications(ctx context.Context) error {
	expired, err := s.entries.ExpiredNotified(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}
	log.Printf("waitlist: processing %d expired notification(s)", len(expired))

	touched := make(map[uint64]struct{})
	for _, entry := range expired {
		ok, err := s.entries.MarkExpired(ctx, entry.ID)
		if err != nil {
			log.Printf("waitlist: failed to expire entry id=%d event=%d: %v", entry.ID, entry.EventID, err)
			continue
		}
		if !ok {
			// another instance's sweep got here first
			continue
		}
		log.Printf("waitlist: notification expired for %s event=%d", entry.UserEmail, entry.EventID)
		touched[entry.EventID] = struct{}{}
	}

	for eventID := range touched {
		if err := s.Redistribute(ctx, eventID, 1, nil, nil); err != nil {
			log.Printf("waitlist: re-offer after expiry failed for event=%d: %v", eventID, err)
		}
	}
	return nil
}

// PositionOf returns a participant's entry together with the event title
// for the response payload.
func (s *WaitlistService) PositionOf(ctx context.Context, eventID uint64, email string) (*model.WaitlistEntry, string, error) {
	entry, err := s.entries.FindByEventAndEmail(ctx, eventID, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrEntryNotFound
		}
		return nil, "", err
	}
	title := ""
	if event, err := s.events.GetByID(ctx, eventID); err == nil {
		title = event.Title
	}
	return entry, title, nil
}

// Count returns how many participants are WAITING for an event.
func (s *WaitlistService) Count(ctx context.Context, eventID uint64) (int64, error) {
	return s.entries.CountWaiting(ctx, eventID)
}

// IsEventFull compares the oracle's confirmed-participant count with the
// event's capacity.  Events without a capacity are never full; an
// unreachable oracle counts as not full (conservative: the invitation
// domain still enforces capacity on its side).
func (s *WaitlistService) IsEventFull(ctx context.Context, eventID uint64) (bool, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrEventNotFound
		}
		return false, err
	}
	if event.MaxCapacity == nil {
		return false, nil
	}
	confirmed, err := s.oracle.ConfirmedCount(ctx, eventID)
	if err != nil {
		log.Printf("waitlist: confirmed-count check failed for event=%d: %v", eventID, err)
		return false, nil
	}
	return confirmed >= int64(*event.MaxCapacity), nil
}

// ClearAll deletes every waitlist entry across all events.
func (s *WaitlistService) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.entries.ClearAll(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("waitlist: cleared all waitlists, %d entries removed", n)
	return n, nil
}
