package model

import "time"

// ShowStatus is the lifecycle state of a scheduled screening.  Shows are
// owned by the catalog; the booking core only reads them and never drives
// their transitions.
type ShowStatus string

const (
    ShowScheduled ShowStatus = "SCHEDULED" // announced, seats bookable
    ShowOngoing   ShowStatus = "ONGOING"   // screening in progress
    ShowCompleted ShowStatus = "COMPLETED" // screening finished
    ShowCancelled ShowStatus = "CANCELLED" // screening called off
)

// Valid reports whether s is one of the known show statuses.  Statuses
// arrive from the catalog database as plain strings and are validated at
// the boundary before entering the core.
func (s ShowStatus) Valid() bool {
    switch s {
    case ShowScheduled, ShowOngoing, ShowCompleted, ShowCancelled:
        return true
    }
    return false
}

// Show describes a scheduled screening of a movie on a screen.  The core
// treats shows as read-only reference data: the seating capacity bounds
// how many seats may ever be booked, and the start time gates
// cancellations.
//
// Fields:
//  ID              – primary identifier of the show.
//  ScreenID        – screen on which the show runs.
//  SeatingCapacity – total seats of the screen; booked seats never exceed it.
//  StartsAt        – when the screening begins (UTC).
//  EndsAt          – when the screening ends (UTC).
//  Status          – lifecycle status, see ShowStatus.
type Show struct {
    ID              uint64
    ScreenID        uint64
    SeatingCapacity uint32
    StartsAt        time.Time
    EndsAt          time.Time
    Status          ShowStatus
}
