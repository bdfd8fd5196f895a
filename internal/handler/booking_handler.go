package handler

import (
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/cinecore/movie-booking/internal/booking"
    "github.com/cinecore/movie-booking/internal/catalog"
    "github.com/cinecore/movie-booking/internal/ledger"
    "github.com/cinecore/movie-booking/internal/model"
)

// BookingHandler exposes the booking core over HTTP: seat availability,
// checkout, hold extension and cancellation.  All methods assume JWT
// authentication has already run for the protected routes; the customer
// id is taken from the token's subject claim.  Seat and booking errors
// from the core are typed, so this layer only translates them to HTTP
// status codes.
type BookingHandler struct {
    Orch    *booking.Orchestrator
    Ledger  *ledger.Ledger
    HoldTTL time.Duration
}

// NewBookingHandler constructs a BookingHandler.  Orchestrator and
// ledger must be non-nil; holdTTL is the extension applied when a
// request does not name one, the same HOLD_TTL_SECONDS the orchestrator
// uses for new holds.
func NewBookingHandler(orch *booking.Orchestrator, l *ledger.Ledger, holdTTL time.Duration) *BookingHandler {
    if orch == nil || l == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{Orch: orch, Ledger: l, HoldTTL: holdTTL}
}

// getCustomerID extracts the authenticated customer id from the context
// values set by the JWT middleware.  The subject claim may arrive as a
// string or a JSON number depending on the issuer.
func getCustomerID(c echo.Context) (uint64, error) {
    switch v := c.Get("user_id").(type) {
    case string:
        return strconv.ParseUint(v, 10, 64)
    case float64:
        if v <= 0 {
            return 0, fmt.Errorf("invalid subject")
        }
        return uint64(v), nil
    }
    return 0, fmt.Errorf("missing subject")
}

// GetShowSeats handles GET /v1/shows/:id/seats.  It returns a consistent
// snapshot of every seat's state for the show so guests can pick seats
// before authenticating.
func (h *BookingHandler) GetShowSeats(c echo.Context) error {
    showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || showID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    states, err := h.Ledger.GetStates(showID, nil)
    if err != nil {
        if errors.Is(err, ledger.ErrShowNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seats"})
    }
    // Key by decimal seat id for a stable JSON object.
    out := make(map[string]string, len(states))
    for seatID, state := range states {
        out[strconv.FormatUint(seatID, 10)] = string(state)
    }
    return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "seats": out})
}

// StartBooking handles POST /v1/shows/:id/bookings.  The body carries
// the requested seat ids and a payment method.  On success the seats are
// held, a PENDING booking is created and the charge is handed to the
// payment gateway; the response carries the booking id, total amount and
// hold expiry.  Contended seats produce a 409 listing exactly the
// unavailable seat ids, with no seat changed.
func (h *BookingHandler) StartBooking(c echo.Context) error {
    customerID, err := getCustomerID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || showID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
    }
    var body struct {
        SeatIDs       []uint64 `json:"seat_ids"`
        PaymentMethod string   `json:"payment_method"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if len(body.SeatIDs) == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
    }
    method := model.PaymentMethod(body.PaymentMethod)
    if !method.Valid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown payment method"})
    }

    ctx := c.Request().Context()
    b, err := h.Orch.StartBooking(ctx, showID, body.SeatIDs, customerID)
    if err != nil {
        var conflict *ledger.ConflictError
        switch {
        case errors.As(err, &conflict):
            return c.JSON(http.StatusConflict, echo.Map{
                "error":       "some seats are unavailable",
                "unavailable": conflict.SeatIDs,
            })
        case errors.Is(err, catalog.ErrShowNotFound), errors.Is(err, ledger.ErrShowNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
        case errors.Is(err, booking.ErrShowNotBookable):
            return c.JSON(http.StatusConflict, echo.Map{"error": "show not open for booking"})
        case errors.Is(err, booking.ErrCapacityExceeded):
            return c.JSON(http.StatusConflict, echo.Map{"error": "seating capacity exceeded"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start booking"})
        }
    }

    // Hand the charge to the gateway.  A gateway failure cancels the
    // booking immediately so the seats do not sit held until expiry.
    if _, err := h.Orch.AwaitPayment(ctx, b.ID, method); err != nil {
        _ = h.Orch.CancelBooking(ctx, b.ID)
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
    }

    cur, _ := h.Orch.GetBooking(ctx, b.ID)
    return c.JSON(http.StatusCreated, echo.Map{
        "booking_id":         b.ID,
        "status":             string(cur.Status),
        "seat_ids":           b.SeatIDs,
        "total_amount_cents": b.TotalAmountCents,
    })
}

// GetBooking handles GET /v1/bookings/:id.  Customers may only read
// their own bookings.
func (h *BookingHandler) GetBooking(c echo.Context) error {
    customerID, err := getCustomerID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    b, err := h.Orch.GetBooking(c.Request().Context(), c.Param("id"))
    if err != nil {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    }
    if b.CustomerID != customerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "booking_id":         b.ID,
        "show_id":            b.ShowID,
        "status":             string(b.Status),
        "seat_ids":           b.SeatIDs,
        "total_amount_cents": b.TotalAmountCents,
        "created_at":         b.CreatedAt.Format(time.RFC3339),
    })
}

// ExtendBooking handles POST /v1/bookings/:id/extend.  It pushes the
// hold expiry out while the customer is still paying.  The TTL comes
// from the body as seconds and falls back to the configured hold TTL.
func (h *BookingHandler) ExtendBooking(c echo.Context) error {
    customerID, err := getCustomerID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID := c.Param("id")
    b, err := h.Orch.GetBooking(c.Request().Context(), bookingID)
    if err != nil {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    }
    if b.CustomerID != customerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    var body struct {
        TTLSeconds int `json:"ttl_seconds"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    ttl := time.Duration(body.TTLSeconds) * time.Second
    if ttl <= 0 {
        ttl = h.HoldTTL
    }
    expiresAt, err := h.Orch.ExtendHold(bookingID, ttl)
    if err != nil {
        return c.JSON(http.StatusConflict, echo.Map{"error": "booking no longer extendable"})
    }
    return c.JSON(http.StatusOK, echo.Map{"expires_at": expiresAt.Format(time.RFC3339)})
}

// CancelBooking handles DELETE /v1/bookings/:id.  Pending and confirmed
// bookings cancel (with refund when paid) until the show starts; a 409
// is returned afterwards.  Cancelling twice is harmless.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
    customerID, err := getCustomerID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID := c.Param("id")
    b, err := h.Orch.GetBooking(c.Request().Context(), bookingID)
    if err != nil {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    }
    if b.CustomerID != customerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    if err := h.Orch.CancelBooking(c.Request().Context(), bookingID); err != nil {
        switch {
        case errors.Is(err, booking.ErrShowStarted):
            return c.JSON(http.StatusConflict, echo.Map{"error": "show already started"})
        case errors.Is(err, booking.ErrNotCancellable):
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking already completed"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
        }
    }
    return c.NoContent(http.StatusNoContent)
}
