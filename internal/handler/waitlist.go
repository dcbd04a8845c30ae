package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-waitlist/internal/model"
	"github.com/iliyamo/event-waitlist/internal/service"
)

// WaitlistHandler exposes the waiting-queue operations over HTTP.  Role
// gating (USER/ADMIN on participant routes, ADMIN on administrative ones)
// is applied by the router.
type WaitlistHandler struct {
	Waitlist *service.WaitlistService
}

// NewWaitlistHandler constructs a WaitlistHandler.
func NewWaitlistHandler(w *service.WaitlistService) *WaitlistHandler {
	if w == nil {
		panic("nil service passed to NewWaitlistHandler")
	}
	return &WaitlistHandler{Waitlist: w}
}

// waitlistEntryResponse is the JSON shape of a waitlist entry shared with
// clients and kept stable with the invitation domain's expectations.
type waitlistEntryResponse struct {
	ID               uint64     `json:"id"`
	EventID          uint64     `json:"eventId"`
	EventTitle       string     `json:"eventTitle,omitempty"`
	UserEmail        string     `json:"userEmail"`
	Position         int        `json:"position"`
	Status           string     `json:"status"`
	NotificationSent bool       `json:"notificationSent"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toEntryResponse(e *model.WaitlistEntry, title string) waitlistEntryResponse {
	return waitlistEntryResponse{
		ID:               e.ID,
		EventID:          e.EventID,
		EventTitle:       title,
		UserEmail:        e.UserEmail,
		Position:         e.Position,
		Status:           e.Status,
		NotificationSent: e.NotificationSent,
		ExpiresAt:        e.ExpiresAt,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

// Join handles POST /v1/events/:id/waitlist/join.  Adds the caller to the
// event's waiting queue; re-joining while WAITING returns the same entry.
func (h *WaitlistHandler) Join(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	entry, title, err := h.Waitlist.Join(c.Request().Context(), eventID, email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, service.ErrWaitlistDisabled),
			errors.Is(err, service.ErrAlreadyRegistered),
			errors.Is(err, service.ErrAlreadyWaiting):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry, title))
}

// Leave handles DELETE /v1/events/:id/waitlist/leave.  Removes the caller
// from the queue and compacts the positions behind them.
func (h *WaitlistHandler) Leave(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Waitlist.Leave(c.Request().Context(), eventID, email); err != nil {
		switch {
		case errors.Is(err, service.ErrNotWaiting), errors.Is(err, service.ErrEventNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "left the waitlist"})
}

// Position handles GET /v1/events/:id/waitlist/position.  Returns the
// caller's entry or 404 when they are not queued.
func (h *WaitlistHandler) Position(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	entry, title, err := h.Waitlist.PositionOf(c.Request().Context(), eventID, email)
	if err != nil {
		if errors.Is(err, service.ErrEntryNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not on the waitlist"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry, title))
}

// Confirm handles POST /v1/events/:id/waitlist/confirm.  Claims an offered
// spot before the deadline.
func (h *WaitlistHandler) Confirm(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Waitlist.Confirm(c.Request().Context(), eventID, email); err != nil {
		switch {
		case errors.Is(err, service.ErrEntryNotFound), errors.Is(err, service.ErrEventNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, service.ErrCannotConfirm), errors.Is(err, service.ErrConfirmExpired):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "spot confirmed"})
}

// Count handles GET /v1/events/:id/waitlist/count (ADMIN).
func (h *WaitlistHandler) Count(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	n, err := h.Waitlist.Count(c.Request().Context(), eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"count": n})
}

// Redistribute handles POST /v1/events/:id/waitlist/redistribute/:slots
// (ADMIN): manual trigger of the promotion engine.
func (h *WaitlistHandler) Redistribute(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	slots, err := strconv.Atoi(c.Param("slots"))
	if err != nil || slots <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot count"})
	}
	if err := h.Waitlist.Redistribute(c.Request().Context(), eventID, slots, nil, nil); err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "redistribution completed"})
}

// Notify handles POST /v1/events/:id/waitlist/notify (ADMIN): offers the
// next free spot to the head of the queue and starts its confirmation
// window.
func (h *WaitlistHandler) Notify(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	entry, err := h.Waitlist.Notify(c.Request().Context(), eventID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, service.ErrWaitlistDisabled), errors.Is(err, service.ErrNothingToOffer):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry, ""))
}

// Full handles GET /v1/events/:id/waitlist/full: whether the event reached
// its confirmed-participant capacity.
func (h *WaitlistHandler) Full(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	full, err := h.Waitlist.IsEventFull(c.Request().Context(), eventID)
	if err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"full": full})
}
