package router // registers the HTTP routes of the booking API

import (
    "github.com/labstack/echo/v4"

    "github.com/cinecore/movie-booking/internal/handler"
    "github.com/cinecore/movie-booking/internal/middleware"
)

// RegisterRoutes registers the routes that require no authentication:
// the health check, the public seat availability snapshot and the
// payment gateway webhook (the gateway authenticates upstream of this
// service).
func RegisterRoutes(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler) {
    e.GET("/healthz", handler.Health)
    // Guests browse seat availability before logging in to book.
    e.GET("/v1/shows/:id/seats", b.GetShowSeats)
    // Settlement callbacks from the payment provider.
    e.POST("/v1/payments/outcome", p.Outcome)
}

// RegisterBooking registers the authenticated booking routes under /v1.
// All of them require a valid customer access token; the JWT middleware
// extracts the customer id used for ownership checks.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
    g := e.Group("/v1")
    g.Use(middleware.JWTAuth(jwtSecret))
    g.Use(middleware.RequireRole("CUSTOMER"))
    for _, m := range extra {
        g.Use(m)
    }
    g.POST("/shows/:id/bookings", b.StartBooking)
    g.GET("/bookings/:id", b.GetBooking)
    g.POST("/bookings/:id/extend", b.ExtendBooking)
    g.DELETE("/bookings/:id", b.CancelBooking)
}
