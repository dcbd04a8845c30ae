// Package client talks to the invitation service, the authoritative source
// for "is this participant already registered" and confirmed-participant
// counts.  Calls are synchronous request/response protected by bounded
// exponential retries and a failure-count circuit breaker whose state lives
// in Redis, so the open/closed decision is shared by every service instance
// instead of sitting in a process-wide map.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the invitation service cannot be reached
// within the retry budget or the circuit breaker is open.  Callers decide
// per call site whether to block the operation or proceed conservatively.
var ErrUnavailable = errors.New("invitation service unavailable")

const (
	breakerKey     = "oracle:invitation:failures"
	maxRetries     = 3
	requestTimeout = 5 * time.Second
)

// InvitationClient is an HTTP client for the invitation service.
type InvitationClient struct {
	baseURL string
	httpc   *http.Client
	rdb     *redis.Client // nil disables the breaker; retries still apply

	breakerThreshold int
	breakerWindow    time.Duration
}

// NewInvitationClient builds a client for the given base URL.  rdb may be
// nil, in which case the breaker is disabled and only retries protect the
// caller.
func NewInvitationClient(baseURL string, rdb *redis.Client, breakerThreshold int, breakerWindow time.Duration) *InvitationClient {
	return &InvitationClient{
		baseURL:          baseURL,
		httpc:            &http.Client{Timeout: requestTimeout},
		rdb:              rdb,
		breakerThreshold: breakerThreshold,
		breakerWindow:    breakerWindow,
	}
}

// IsUserRegistered reports whether the participant already holds a
// confirmed registration for the event.
func (c *InvitationClient) IsUserRegistered(ctx context.Context, eventID uint64, email string) (bool, error) {
	var registered bool
	path := fmt.Sprintf("/invitations/check/%d/%s", eventID, url.PathEscape(email))
	if err := c.getJSON(ctx, path, &registered); err != nil {
		return false, err
	}
	return registered, nil
}

// invitationStats mirrors the stats payload of the invitation service.
// Accepted invitations are the confirmed participants of an event.
type invitationStats struct {
	EventID  uint64 `json:"eventId"`
	Total    int64  `json:"total"`
	Pending  int64  `json:"pending"`
	Accepted int64  `json:"accepted"`
	Declined int64  `json:"declined"`
}

// ConfirmedCount returns how many participants hold an accepted invitation
// for the event.
func (c *InvitationClient) ConfirmedCount(ctx context.Context, eventID uint64) (int64, error) {
	var stats invitationStats
	path := fmt.Sprintf("/invitations/event/%d/stats", eventID)
	if err := c.getJSON(ctx, path, &stats); err != nil {
		return 0, err
	}
	return stats.Accepted, nil
}

// getJSON performs a GET with retries and the breaker wrapped around it,
// decoding the response body into out.
func (c *InvitationClient) getJSON(ctx context.Context, path string, out any) error {
	if c.breakerOpen(ctx) {
		return ErrUnavailable
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("invitation service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("invitation service returned %d", resp.StatusCode))
		}
		dec := json.NewDecoder(resp.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode invitation response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		c.recordFailure(ctx)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.recordSuccess(ctx)
	return nil
}

// breakerOpen reports whether the shared failure counter crossed the
// threshold inside the current window.
func (c *InvitationClient) breakerOpen(ctx context.Context) bool {
	if c.rdb == nil {
		return false
	}
	n, err := c.rdb.Get(ctx, breakerKey).Int()
	if err != nil {
		return false // missing key or Redis trouble: stay closed
	}
	return n >= c.breakerThreshold
}

// recordFailure bumps the shared failure counter.  The counter expires with
// the breaker window, so the breaker half-opens by itself once the window
// passes.
func (c *InvitationClient) recordFailure(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, breakerKey)
	pipe.Expire(ctx, breakerKey, c.breakerWindow)
	_, _ = pipe.Exec(ctx)
}

// recordSuccess closes the breaker again after a healthy call.
func (c *InvitationClient) recordSuccess(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, breakerKey).Err()
}
