package model

import "time"

// BookingStatus is the lifecycle state of a booking.  Valid edges are
// PENDING→CONFIRMED→COMPLETED plus PENDING→CANCELLED and
// CONFIRMED→CANCELLED; there is no way out of CANCELLED or COMPLETED.
type BookingStatus string

const (
    BookingPending   BookingStatus = "PENDING"   // awaiting payment outcome
    BookingConfirmed BookingStatus = "CONFIRMED" // paid, seats booked
    BookingCancelled BookingStatus = "CANCELLED" // released, possibly refunded
    BookingCompleted BookingStatus = "COMPLETED" // show finished
)

// Terminal reports whether no further transitions are allowed.
func (s BookingStatus) Terminal() bool {
    return s == BookingCancelled || s == BookingCompleted
}

// Booking aggregates the seats a customer purchases for one show in a
// single transaction.  The seat set is an owned list of identifiers fixed
// at creation; cancellation releases every seat in the set atomically.
//
// Fields:
//  ID               – booking identifier, also the ledger owner token once
//                     the seats transition to BOOKED.
//  ShowID           – show being booked.
//  CustomerID       – customer making the booking.
//  HoldID           – hold that backed this booking while PENDING.
//  SeatIDs          – seats purchased; immutable after creation.
//  Status           – lifecycle status, see BookingStatus.
//  TotalAmountCents – sum of per-seat prices in cents.
//  PaymentRef       – opaque reference returned by the payment gateway.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last status change timestamp.
type Booking struct {
    ID               string
    ShowID           uint64
    CustomerID       uint64
    HoldID           string
    SeatIDs          []uint64
    Status           BookingStatus
    TotalAmountCents uint32
    PaymentRef       string
    CreatedAt        time.Time
    UpdatedAt        time.Time
}
