// Package handler contains the Echo HTTP handlers for the waitlist surface
// and the internal seat-lock surface.  All handlers assume JWT and role
// middleware have already run; they read the caller identity from the
// context and translate service errors into the HTTP codes of the API
// contract (validation 400/404, state conflicts 409, internal failures 500).
package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

var errNoEmail = errors.New("missing email in context")

// getEmail extracts the authenticated caller's email injected by the JWT
// middleware.
func getEmail(c echo.Context) (string, error) {
	email, ok := c.Get("email").(string)
	if !ok || email == "" {
		return "", errNoEmail
	}
	return email, nil
}

// parseEventID parses the :id path parameter into an event identifier.
func parseEventID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid event id")
	}
	return id, nil
}
