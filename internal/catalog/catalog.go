// Package catalog defines the read-only contract to the scheduling side
// of the platform.  Shows, screens and seat layouts are created and
// owned elsewhere; the booking core only reads them to seed the seat
// ledger and to validate booking requests.
package catalog

import (
    "context"
    "errors"

    "github.com/cinecore/movie-booking/internal/model"
)

// ErrShowNotFound indicates the show does not exist in the catalog.
var ErrShowNotFound = errors.New("show not found")

// SeatInfo describes one bookable seat of a show as the catalog sees it:
// the physical seat id plus the price set for this particular show.
type SeatInfo struct {
    SeatID     uint64
    PriceCents uint32
}

// Catalog is the external scheduling collaborator.  Implementations must
// be safe for concurrent use.
type Catalog interface {
    // GetShow returns the show with its screen capacity and schedule.
    GetShow(ctx context.Context, showID uint64) (model.Show, error)

    // GetSeatSlots returns every seat of the show's screen with its
    // price.  Used to seed the seat ledger when a show is registered.
    GetSeatSlots(ctx context.Context, showID uint64) ([]SeatInfo, error)

    // ListBookableShows returns the ids of shows whose seats should be
    // managed by the ledger (scheduled or ongoing).
    ListBookableShows(ctx context.Context) ([]uint64, error)
}
