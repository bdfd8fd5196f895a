// Package queue defines the message payloads exchanged over the broker
// and the publisher/consumer plumbing around them.  Booking lifecycle
// events flow out to the notification side; payment outcomes flow in
// from the gateway.
package queue

// BookingConfirmedEvent is published when a booking is confirmed after a
// successful payment.  It carries enough for downstream consumers to
// notify the customer without querying the primary database.
type BookingConfirmedEvent struct {
    BookingID        string   `json:"booking_id"`
    ShowID           uint64   `json:"show_id"`
    CustomerID       uint64   `json:"customer_id"`
    SeatIDs          []uint64 `json:"seat_ids"`
    TotalAmountCents uint32   `json:"total_amount_cents"`
    ConfirmedAt      string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled for any
// reason: payment failure, hold expiry during payment, or an explicit
// customer cancellation.
type BookingCancelledEvent struct {
    BookingID   string   `json:"booking_id"`
    ShowID      uint64   `json:"show_id"`
    CustomerID  uint64   `json:"customer_id"`
    SeatIDs     []uint64 `json:"seat_ids"`
    CancelledAt string   `json:"cancelled_at"`
}

// PaymentOutcomeEvent is the gateway's settlement message, consumed from
// the payment.outcome queue.  Delivery is at-least-once and possibly out
// of order; the reconciler deduplicates per booking.
type PaymentOutcomeEvent struct {
    BookingID   string `json:"booking_id"`
    Result      string `json:"result"` // SUCCEEDED or FAILED
    AmountCents uint32 `json:"amount_cents"`
    OccurredAt  string `json:"occurred_at"` // RFC 3339
}
