// Package reaper runs the periodic background sweeps: expiring overdue
// waitlist notifications (and re-offering the reclaimed slots) and deleting
// lapsed seat locks.  Sweeps are timer-driven and idempotent, so several
// service instances running the same timers do no harm; an error in one
// sweep iteration is logged and the ticker keeps going.
package reaper

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/event-waitlist/internal/service"
)

// Reaper owns the two sweep timers.
type Reaper struct {
	Waitlist *service.WaitlistService
	Locks    *service.SeatLockService

	ExpiryInterval time.Duration // cadence of the expired-notification sweep
	LockInterval   time.Duration // cadence of the expired-lock sweep
}

// Run starts both sweeps and blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	expiry := time.NewTicker(r.ExpiryInterval)
	locks := time.NewTicker(r.LockInterval)
	defer expiry.Stop()
	defer locks.Stop()

	log.Printf("reaper: running (notifications every %s, locks every %s)", r.ExpiryInterval, r.LockInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("reaper: stopping: %v", ctx.Err())
			return
		case <-expiry.C:
			if err := r.Waitlist.ProcessExpiredNotifications(ctx); err != nil {
				log.Printf("reaper: expired-notification sweep failed: %v", err)
			}
		case <-locks.C:
			if _, err := r.Locks.CleanupExpired(ctx); err != nil {
				log.Printf("reaper: expired-lock sweep failed: %v", err)
			}
		}
	}
}
