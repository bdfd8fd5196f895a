package model

import "time"

// PaymentMethod enumerates the payment instruments accepted at checkout.
// The values follow the gateway's wire naming and are validated when a
// booking request enters the system.
type PaymentMethod string

const (
    PayCreditCard PaymentMethod = "credit_card"
    PayDebitCard  PaymentMethod = "debit_card"
    PayNetBanking PaymentMethod = "net_banking"
    PayUPI        PaymentMethod = "upi"
    PayWallet     PaymentMethod = "wallet"
    PayCash       PaymentMethod = "cash"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
    switch m {
    case PayCreditCard, PayDebitCard, PayNetBanking, PayUPI, PayWallet, PayCash:
        return true
    }
    return false
}

// PaymentResult is the terminal result of an external payment attempt.
type PaymentResult string

const (
    PaymentSucceeded PaymentResult = "SUCCEEDED"
    PaymentFailed    PaymentResult = "FAILED"
)

// Valid reports whether r is a known payment result.
func (r PaymentResult) Valid() bool {
    return r == PaymentSucceeded || r == PaymentFailed
}

// PaymentOutcome is the event delivered by the payment collaborator once
// a payment attempt settles.  Delivery is at-least-once and possibly
// out-of-order, so consumers must treat outcomes idempotently per booking.
//
// Fields:
//  BookingID   – booking the payment was made for.
//  Result      – SUCCEEDED or FAILED.
//  AmountCents – amount the gateway actually settled, in cents.
//  OccurredAt  – when the gateway recorded the outcome.
type PaymentOutcome struct {
    BookingID   string
    Result      PaymentResult
    AmountCents uint32
    OccurredAt  time.Time
}
