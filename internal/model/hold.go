package model

import "time"

// HoldStatus is the lifecycle state of a seat hold.  A hold starts ACTIVE
// and moves exactly once into one of the three terminal states; the
// transition is a single atomic claim, so an expiry firing and a customer
// commit can never both win.
type HoldStatus string

const (
    HoldActive    HoldStatus = "ACTIVE"    // seats held, expiry pending
    HoldCommitted HoldStatus = "COMMITTED" // consumed by a booking checkout
    HoldExpired   HoldStatus = "EXPIRED"   // TTL elapsed, seats released
    HoldCancelled HoldStatus = "CANCELLED" // released by the customer
)

// Terminal reports whether the status is one of the one-way end states.
func (s HoldStatus) Terminal() bool {
    return s == HoldCommitted || s == HoldExpired || s == HoldCancelled
}

// Hold is a temporary, TTL-bounded claim on a non-empty set of seats for
// one show, taken while a customer completes checkout.  The hold id
// doubles as the ledger owner token for the seats while they are HELD.
//
// Fields:
//  ID         – opaque hold token, also the ledger owner token.
//  ShowID     – show the held seats belong to.
//  SeatIDs    – seats claimed by this hold; immutable after acquisition.
//  CustomerID – customer or session that owns the hold.
//  Status     – lifecycle status, see HoldStatus.
//  CreatedAt  – when the hold was acquired.
//  ExpiresAt  – when the expiry fires unless committed or cancelled first.
type Hold struct {
    ID         string
    ShowID     uint64
    SeatIDs    []uint64
    CustomerID uint64
    Status     HoldStatus
    CreatedAt  time.Time
    ExpiresAt  time.Time
}
