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

// SeatLockHandler exposes the temporary seat-lock operations consumed by
// the invitation domain during seat selection.  This surface is internal
// to the platform; it still rides the same JWT/role middleware as the rest
// of the API.
type SeatLockHandler struct {
	Locks *service.SeatLockService
}

// NewSeatLockHandler constructs a SeatLockHandler.
func NewSeatLockHandler(l *service.SeatLockService) *SeatLockHandler {
	if l == nil {
		panic("nil service passed to NewSeatLockHandler")
	}
	return &SeatLockHandler{Locks: l}
}

type seatLockResponse struct {
	EventID    uint64    `json:"eventId"`
	Row        int       `json:"row"`
	Number     int       `json:"number"`
	UserEmail  string    `json:"userEmail"`
	LockTime   time.Time `json:"lockTime"`
	ExpiryTime time.Time `json:"expiryTime"`
}

func toSeatLockResponse(l *model.SeatLock) seatLockResponse {
	return seatLockResponse{
		EventID:    l.EventID,
		Row:        l.SeatRow,
		Number:     l.SeatNumber,
		UserEmail:  l.UserEmail,
		LockTime:   l.LockTime,
		ExpiryTime: l.ExpiryTime,
	}
}

// Lock handles POST /v1/events/:id/seats/lock.  The body names the seat
// coordinate; a repeat call by the current holder renews the lock, anyone
// else gets 409 until the lock expires or is released.
func (h *SeatLockHandler) Lock(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		Row    int `json:"row"`
		Number int `json:"number"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Row <= 0 || body.Number <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "row and number are required"})
	}
	lock, err := h.Locks.Lock(c.Request().Context(), eventID, body.Row, body.Number, email)
	if err != nil {
		if errors.Is(err, service.ErrSeatUnavailable) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat unavailable"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, toSeatLockResponse(lock))
}

// Release handles DELETE /v1/events/:id/seats/lock?row=&number=.  Only the
// holder's lock is deleted; anything else is a silent no-op.
func (h *SeatLockHandler) Release(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	row, number, err := seatCoordinate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Locks.Release(c.Request().Context(), eventID, row, number, email); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "released"})
}

// Locked handles GET /v1/events/:id/seats/locked: all active locks for the
// event.
func (h *SeatLockHandler) Locked(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	locks, err := h.Locks.LockedSeats(c.Request().Context(), eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	out := make([]seatLockResponse, 0, len(locks))
	for i := range locks {
		out = append(out, toSeatLockResponse(&locks[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// Check handles GET /v1/events/:id/seats/locked/check?row=&number=: whether
// the seat is locked by someone other than the caller.
func (h *SeatLockHandler) Check(c echo.Context) error {
	email, err := getEmail(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	row, number, err := seatCoordinate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	locked, err := h.Locks.IsLocked(c.Request().Context(), eventID, row, number, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"locked": locked})
}

// seatCoordinate reads the row/number query parameters.
func seatCoordinate(c echo.Context) (int, int, error) {
	row, err := strconv.Atoi(c.QueryParam("row"))
	if err != nil || row <= 0 {
		return 0, 0, errors.New("invalid row")
	}
	number, err := strconv.Atoi(c.QueryParam("number"))
	if err != nil || number <= 0 {
		return 0, 0, errors.New("invalid number")
	}
	return row, number, nil
}
