package model

// SeatState is the reservation state of one seat for one show.  The seat
// ledger is the only component allowed to change it, and every change is
// an all-or-nothing transition over the full requested seat set.
type SeatState string

const (
    SeatAvailable SeatState = "AVAILABLE" // free to be held
    SeatHeld      SeatState = "HELD"      // claimed by an active hold
    SeatBooked    SeatState = "BOOKED"    // owned by a confirmed booking
)

// Valid reports whether s is one of the known seat states.
func (s SeatState) Valid() bool {
    switch s {
    case SeatAvailable, SeatHeld, SeatBooked:
        return true
    }
    return false
}

// SeatSlot is the bookable unit: one physical seat for one specific show.
// Exactly one slot exists per (show, seat) pair.  The owner token records
// which hold or booking currently claims the seat, and the version grows
// monotonically on every transition so the durable journal can replay
// compare-and-swap semantics after a restart.
//
// Fields:
//  ShowID     – show the slot belongs to.
//  SeatID     – physical seat within the screen.
//  State      – current reservation state.
//  OwnerToken – hold id or booking id claiming the seat; empty when AVAILABLE.
//  PriceCents – price of this seat for this show, in cents.
//  Version    – monotonically increasing change counter per (show, seat).
type SeatSlot struct {
    ShowID     uint64
    SeatID     uint64
    State      SeatState
    OwnerToken string
    PriceCents uint32
    Version    uint64
}
