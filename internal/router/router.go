package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-waitlist/internal/handler"
	"github.com/iliyamo/event-waitlist/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterWaitlist registers the waitlist surface under /v1.  Participant
// routes accept USER and ADMIN; the count, manual redistribution and offer
// endpoints are ADMIN-only.  The jwtSecret verifies tokens issued by the
// external auth service.
func RegisterWaitlist(e *echo.Echo, w *handler.WaitlistHandler, jwtSecret string) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))

	user := auth.Group("/events/:id/waitlist", middleware.RequireRole("USER", "ADMIN"))
	user.POST("/join", w.Join)
	user.DELETE("/leave", w.Leave)
	user.GET("/position", w.Position)
	user.POST("/confirm", w.Confirm)
	user.GET("/full", w.Full)

	admin := auth.Group("/events/:id/waitlist", middleware.RequireRole("ADMIN"))
	admin.GET("/count", w.Count)
	admin.POST("/redistribute/:slots", w.Redistribute)
	admin.POST("/notify", w.Notify)
}

// RegisterSeatLocks registers the seat-lock surface consumed by the
// invitation domain during seat selection.  These routes ride the same JWT
// middleware; both roles may hold, inspect and release seat locks.
func RegisterSeatLocks(e *echo.Echo, s *handler.SeatLockHandler, jwtSecret string) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))

	seats := auth.Group("/events/:id/seats", middleware.RequireRole("USER", "ADMIN"))
	seats.POST("/lock", s.Lock)
	seats.DELETE("/lock", s.Release)
	seats.GET("/locked", s.Locked)
	seats.GET("/locked/check", s.Check)
}
