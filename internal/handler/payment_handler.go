package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/cinecore/movie-booking/internal/booking"
    "github.com/cinecore/movie-booking/internal/model"
    "github.com/cinecore/movie-booking/internal/queue"
)

// PaymentHandler receives payment outcome webhooks from the gateway, as
// an alternative delivery path to the broker queue.  The gateway
// authenticates upstream (mutual TLS at the edge), so the route carries
// no JWT.  Both paths land in the same reconciler, which deduplicates,
// so a gateway configured to deliver on both channels is safe.
type PaymentHandler struct {
    Reconciler *booking.Reconciler
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(r *booking.Reconciler) *PaymentHandler {
    if r == nil {
        panic("nil reconciler passed to NewPaymentHandler")
    }
    return &PaymentHandler{Reconciler: r}
}

// Outcome handles POST /v1/payments/outcome.  Valid outcomes are always
// answered 202: duplicates are consumed silently by design, and the
// gateway must not retry them.  Only malformed payloads get a 400 and
// only infrastructure failures a 500 (the gateway redelivers those).
func (h *PaymentHandler) Outcome(c echo.Context) error {
    var body queue.PaymentOutcomeEvent
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.BookingID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id is required"})
    }
    result := model.PaymentResult(body.Result)
    if !result.Valid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown result"})
    }
    occurredAt := time.Now().UTC()
    if body.OccurredAt != "" {
        t, err := time.Parse(time.RFC3339, body.OccurredAt)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid occurred_at"})
        }
        occurredAt = t
    }

    ev := model.PaymentOutcome{
        BookingID:   body.BookingID,
        Result:      result,
        AmountCents: body.AmountCents,
        OccurredAt:  occurredAt,
    }
    if err := h.Reconciler.OnPaymentOutcome(c.Request().Context(), ev); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process outcome"})
    }
    return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
}
