// Package ledger implements the seat ledger: the single authoritative,
// concurrency-safe record of every seat's reservation state per show.
// All mutual exclusion in the booking core happens here.  Each show owns
// its own lock, so booking traffic for different shows never contends,
// and a lock is only ever held for the duration of one in-memory pass
// over the requested seat set.
package ledger

import (
    "context"
    "fmt"
    "log"
    "sort"
    "sync"

    "github.com/cinecore/movie-booking/internal/model"
)

// ConflictError reports a failed transition.  It lists exactly the seats
// that were not in a permitted source state; no seat changed state.
// Callers should re-query availability and retry with a different
// selection rather than retrying the same set.
type ConflictError struct {
    ShowID  uint64
    SeatIDs []uint64 // offending seats, ascending
}

func (e *ConflictError) Error() string {
    return fmt.Sprintf("seat conflict: show %d seats %v not transitionable", e.ShowID, e.SeatIDs)
}

// ErrShowNotFound is returned when the show has not been registered with
// the ledger.
var ErrShowNotFound = fmt.Errorf("ledger: show not registered")

// SlotChange is one committed seat transition, as handed to the journal.
// Versions increase by one per transition of a given (show, seat) pair.
type SlotChange struct {
    ShowID     uint64
    SeatID     uint64
    State      model.SeatState
    OwnerToken string
    Version    uint64
}

// Journal durably records committed slot changes so the ledger state can
// be rebuilt after a restart.  Record is called outside the show lock;
// implementations may write to a database.  Journal failures are logged
// and never roll back an in-memory transition.
type Journal interface {
    Record(ctx context.Context, changes []SlotChange) error
}

// SeatSeed initialises one slot when a show is registered.  State, owner
// and version are zero-valued for a fresh show and carry recovered data
// when replaying a persisted ledger.
type SeatSeed struct {
    SeatID     uint64
    PriceCents uint32
    State      model.SeatState
    OwnerToken string
    Version    uint64
}

type slot struct {
    state   model.SeatState
    owner   string
    price   uint32
    version uint64
}

// showLedger guards the slots of one show.  The mutex scope is the whole
// seat map of that show and nothing else.
type showLedger struct {
    mu       sync.Mutex
    capacity uint32
    slots    map[uint64]*slot
}

// Ledger is the per-show seat state authority.  The outer lock only
// protects the show registry; all seat mutations go through the per-show
// mutex.
type Ledger struct {
    mu      sync.RWMutex
    shows   map[uint64]*showLedger
    journal Journal // may be nil when durability is not configured
}

// New constructs an empty ledger.  Pass a nil journal to run purely in
// memory (tests do this).
func New(journal Journal) *Ledger {
    return &Ledger{shows: make(map[uint64]*showLedger), journal: journal}
}

// RegisterShow creates the slots for a show.  Seeds with a zero State
// default to AVAILABLE.  Registering the same show twice is an error so
// that a recovery replay can never silently reset live seats.
func (l *Ledger) RegisterShow(showID uint64, capacity uint32, seats []SeatSeed) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    if _, ok := l.shows[showID]; ok {
        return fmt.Errorf("ledger: show %d already registered", showID)
    }
    sl := &showLedger{capacity: capacity, slots: make(map[uint64]*slot, len(seats))}
    for _, s := range seats {
        st := s.State
        if st == "" {
            st = model.SeatAvailable
        }
        sl.slots[s.SeatID] = &slot{state: st, owner: s.OwnerToken, price: s.PriceCents, version: s.Version}
    }
    l.shows[showID] = sl
    return nil
}

func (l *Ledger) show(showID uint64) (*showLedger, bool) {
    l.mu.RLock()
    sl, ok := l.shows[showID]
    l.mu.RUnlock()
    return sl, ok
}

// GetStates returns a consistent snapshot of the requested seats' states.
// A nil or empty seatIDs requests every seat of the show.  The snapshot
// is taken under the show lock and copied out, so it never observes a
// half-applied transition.
func (l *Ledger) GetStates(showID uint64, seatIDs []uint64) (map[uint64]model.SeatState, error) {
    sl, ok := l.show(showID)
    if !ok {
        return nil, ErrShowNotFound
    }
    sl.mu.Lock()
    defer sl.mu.Unlock()
    out := make(map[uint64]model.SeatState)
    if len(seatIDs) == 0 {
        for id, s := range sl.slots {
            out[id] = s.state
        }
        return out, nil
    }
    for _, id := range seatIDs {
        if s, ok := sl.slots[id]; ok {
            out[id] = s.state
        }
    }
    return out, nil
}

// Prices returns the per-seat price in cents for the requested seats.
// Unknown seats are omitted from the result.
func (l *Ledger) Prices(showID uint64, seatIDs []uint64) (map[uint64]uint32, error) {
    sl, ok := l.show(showID)
    if !ok {
        return nil, ErrShowNotFound
    }
    sl.mu.Lock()
    defer sl.mu.Unlock()
    out := make(map[uint64]uint32, len(seatIDs))
    for _, id := range seatIDs {
        if s, ok := sl.slots[id]; ok {
            out[id] = s.price
        }
    }
    return out, nil
}

// BookedCount returns how many seats of the show are currently BOOKED,
// along with the screen capacity.  Used for the defensive capacity check
// before acquiring a hold.
func (l *Ledger) BookedCount(showID uint64) (booked, capacity uint32, err error) {
    sl, ok := l.show(showID)
    if !ok {
        return 0, 0, ErrShowNotFound
    }
    sl.mu.Lock()
    defer sl.mu.Unlock()
    for _, s := range sl.slots {
        if s.state == model.SeatBooked {
            booked++
        }
    }
    return booked, sl.capacity, nil
}

// TryTransition atomically moves every requested seat from one of the
// from states to the to state, tagging each with the owner token.  Either
// all seats transition or none do: if any seat is missing or not in a
// permitted source state the call returns a *ConflictError naming the
// offending seats and leaves the ledger untouched.  Committed transitions
// for a given (show, seat) are linearizable: the per-show mutex imposes a
// single total order, so two racing claims for the same seat always see
// one winner and one conflict.
func (l *Ledger) TryTransition(ctx context.Context, showID uint64, seatIDs []uint64, from []model.SeatState, to model.SeatState, ownerToken string) error {
    sl, ok := l.show(showID)
    if !ok {
        return ErrShowNotFound
    }
    allowed := make(map[model.SeatState]bool, len(from))
    for _, st := range from {
        allowed[st] = true
    }

    sl.mu.Lock()
    var conflicts []uint64
    for _, id := range seatIDs {
        s, ok := sl.slots[id]
        if !ok || !allowed[s.state] {
            conflicts = append(conflicts, id)
        }
    }
    if len(conflicts) > 0 {
        sl.mu.Unlock()
        sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
        return &ConflictError{ShowID: showID, SeatIDs: conflicts}
    }
    changes := make([]SlotChange, 0, len(seatIDs))
    for _, id := range seatIDs {
        s := sl.slots[id]
        s.state = to
        s.owner = ownerToken
        s.version++
        changes = append(changes, SlotChange{ShowID: showID, SeatID: id, State: to, OwnerToken: ownerToken, Version: s.version})
    }
    sl.mu.Unlock()

    l.record(ctx, changes)
    return nil
}

// Release returns seats owned by ownerToken to AVAILABLE.  Seats not
// owned by the token are skipped silently, which makes duplicate or
// late releases (retries, an expiry racing a commit) harmless no-ops.
// It returns the ids of the seats that were actually released.
func (l *Ledger) Release(ctx context.Context, showID uint64, seatIDs []uint64, ownerToken string) ([]uint64, error) {
    sl, ok := l.show(showID)
    if !ok {
        return nil, ErrShowNotFound
    }

    sl.mu.Lock()
    var released []uint64
    changes := make([]SlotChange, 0, len(seatIDs))
    for _, id := range seatIDs {
        s, ok := sl.slots[id]
        if !ok || s.owner != ownerToken || s.state == model.SeatAvailable {
            continue
        }
        s.state = model.SeatAvailable
        s.owner = ""
        s.version++
        released = append(released, id)
        changes = append(changes, SlotChange{ShowID: showID, SeatID: id, State: model.SeatAvailable, Version: s.version})
    }
    sl.mu.Unlock()

    l.record(ctx, changes)
    return released, nil
}

// record hands committed changes to the journal, outside any lock.
func (l *Ledger) record(ctx context.Context, changes []SlotChange) {
    if l.journal == nil || len(changes) == 0 {
        return
    }
    if err := l.journal.Record(ctx, changes); err != nil {
        log.Printf("ledger: journal write failed: %v", err)
    }
}
