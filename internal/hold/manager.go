// Package hold implements time-bounded seat holds.  A hold claims seats
// in the ledger (AVAILABLE→HELD) and schedules its own expiry; commit,
// cancel and the expiry firing race for a single atomic status claim, so
// exactly one of them ever wins a hold.
package hold

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "log"
    "sync"
    "time"

    "github.com/cinecore/movie-booking/internal/ledger"
    "github.com/cinecore/movie-booking/internal/model"
)

// ErrHoldNotFound is returned when the hold id is unknown or the hold was
// already cancelled.
var ErrHoldNotFound = errors.New("hold not found")

// ErrHoldExpired is returned when the hold's TTL elapsed before it could
// be committed.
var ErrHoldExpired = errors.New("hold expired")

// Store durably records holds.  Writes are best effort: a store failure
// is logged and never blocks or rolls back the in-memory hold, which
// stays authoritative while the process lives.
type Store interface {
    SaveHold(ctx context.Context, h model.Hold) error
    UpdateHoldStatus(ctx context.Context, holdID string, status model.HoldStatus) error
}

// terminalRetention is how long a terminal hold stays queryable before
// it drops out of the registry.  Late commit and cancel calls inside the
// window still learn why the hold ended; afterwards they get
// ErrHoldNotFound.
const terminalRetention = 10 * time.Minute

type record struct {
    hold  model.Hold
    timer *time.Timer
}

// Manager issues and expires seat holds.  It is stateless apart from the
// registry of active holds; the ledger remains the only authority on
// seat states.
type Manager struct {
    ledger    *ledger.Ledger
    store     Store // may be nil
    retention time.Duration

    mu    sync.Mutex
    holds map[string]*record
}

// NewManager constructs a Manager on top of the given ledger.  store may
// be nil when durability is not configured.
func NewManager(l *ledger.Ledger, store Store) *Manager {
    return &Manager{
        ledger:    l,
        store:     store,
        retention: terminalRetention,
        holds:     make(map[string]*record),
    }
}

// newHoldID returns a random hex token used both as the hold identifier
// and as the ledger owner token for the held seats.
func newHoldID() (string, error) {
    b := make([]byte, 16)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return hex.EncodeToString(b), nil
}

// Acquire claims the requested seats for the customer and schedules an
// expiry at now+ttl.  On any seat conflict the ledger leaves every seat
// untouched and the returned error is a *ledger.ConflictError naming the
// unavailable seats, so the caller can offer alternatives.
func (m *Manager) Acquire(ctx context.Context, showID uint64, seatIDs []uint64, customerID uint64, ttl time.Duration) (model.Hold, error) {
    id, err := newHoldID()
    if err != nil {
        return model.Hold{}, err
    }
    if err := m.ledger.TryTransition(ctx, showID, seatIDs, []model.SeatState{model.SeatAvailable}, model.SeatHeld, id); err != nil {
        return model.Hold{}, err
    }

    now := time.Now().UTC()
    h := model.Hold{
        ID:         id,
        ShowID:     showID,
        SeatIDs:    append([]uint64(nil), seatIDs...),
        CustomerID: customerID,
        Status:     model.HoldActive,
        CreatedAt:  now,
        ExpiresAt:  now.Add(ttl),
    }
    rec := &record{hold: h}
    m.mu.Lock()
    m.holds[id] = rec
    rec.timer = time.AfterFunc(ttl, func() { m.expire(id) })
    m.mu.Unlock()

    if m.store != nil {
        if err := m.store.SaveHold(ctx, h); err != nil {
            log.Printf("hold: persist hold %s failed: %v", id, err)
        }
    }
    return h, nil
}

// Extend resets the hold's expiry to now+ttl.  It fails with
// ErrHoldNotFound once the hold has left ACTIVE, because a terminal hold
// can never come back.
func (m *Manager) Extend(holdID string, ttl time.Duration) (time.Time, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.holds[holdID]
    if !ok || rec.hold.Status != model.HoldActive {
        return time.Time{}, ErrHoldNotFound
    }
    rec.hold.ExpiresAt = time.Now().UTC().Add(ttl)
    rec.timer.Reset(ttl)
    return rec.hold.ExpiresAt, nil
}

// Get returns a copy of the hold, for inspection.
func (m *Manager) Get(holdID string) (model.Hold, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.holds[holdID]
    if !ok {
        return model.Hold{}, ErrHoldNotFound
    }
    return rec.hold, nil
}

// claim atomically moves the hold out of ACTIVE into the given terminal
// status.  It returns the hold and true only for the single caller that
// wins; every later claim observes the terminal status and loses.
func (m *Manager) claim(holdID string, to model.HoldStatus) (model.Hold, model.HoldStatus, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.holds[holdID]
    if !ok {
        return model.Hold{}, "", false
    }
    if rec.hold.Status != model.HoldActive {
        return rec.hold, rec.hold.Status, false
    }
    rec.hold.Status = to
    rec.timer.Stop()
    m.scheduleEvict(holdID)
    return rec.hold, to, true
}

// claimExpired is the expiry side of the claim.  An Extend can win the
// manager lock after the timer has already fired; the refreshed deadline
// is detected here and the timer re-armed for the remainder instead of
// expiring a hold the customer just extended.
func (m *Manager) claimExpired(holdID string) (model.Hold, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.holds[holdID]
    if !ok || rec.hold.Status != model.HoldActive {
        return model.Hold{}, false
    }
    if remaining := time.Until(rec.hold.ExpiresAt); remaining > 0 {
        rec.timer.Reset(remaining)
        return model.Hold{}, false
    }
    rec.hold.Status = model.HoldExpired
    rec.timer.Stop()
    m.scheduleEvict(holdID)
    return rec.hold, true
}

// scheduleEvict drops the hold from the registry once the retention
// window passes.  Caller holds m.mu; the status is re-checked at fire
// time.
func (m *Manager) scheduleEvict(holdID string) {
    time.AfterFunc(m.retention, func() {
        m.mu.Lock()
        defer m.mu.Unlock()
        if rec, ok := m.holds[holdID]; ok && rec.hold.Status.Terminal() {
            delete(m.holds, holdID)
        }
    })
}

// Commit consumes the hold for a booking checkout and returns the held
// seat ids.  The seats stay HELD in the ledger; ownership passes to the
// booking orchestrator, which either books them or releases them.  If
// the expiry already fired, Commit fails with ErrHoldExpired and the
// seats are gone.
func (m *Manager) Commit(ctx context.Context, holdID string) ([]uint64, error) {
    h, status, won := m.claim(holdID, model.HoldCommitted)
    if !won {
        if status == model.HoldExpired {
            return nil, ErrHoldExpired
        }
        return nil, ErrHoldNotFound
    }
    m.persistStatus(ctx, holdID, model.HoldCommitted)
    return h.SeatIDs, nil
}

// Cancel releases the hold's seats back to AVAILABLE.  Cancelling a hold
// that is already terminal (committed, expired or unknown) is a no-op,
// so retries and duplicate releases are safe.
func (m *Manager) Cancel(ctx context.Context, holdID string) error {
    h, _, won := m.claim(holdID, model.HoldCancelled)
    if !won {
        return nil
    }
    if _, err := m.ledger.Release(ctx, h.ShowID, h.SeatIDs, h.ID); err != nil {
        return err
    }
    m.persistStatus(ctx, holdID, model.HoldCancelled)
    return nil
}

// expire fires when the TTL elapses without a commit or cancel.  Losing
// the claim means a commit, cancel or extension got there first and
// there is nothing to do.
func (m *Manager) expire(holdID string) {
    h, won := m.claimExpired(holdID)
    if !won {
        return
    }
    ctx := context.Background()
    if _, err := m.ledger.Release(ctx, h.ShowID, h.SeatIDs, h.ID); err != nil {
        log.Printf("hold: release on expiry of %s failed: %v", holdID, err)
    }
    m.persistStatus(ctx, holdID, model.HoldExpired)
    log.Printf("hold: %s expired, released %d seat(s) of show %d", holdID, len(h.SeatIDs), h.ShowID)
}

func (m *Manager) persistStatus(ctx context.Context, holdID string, status model.HoldStatus) {
    if m.store == nil {
        return
    }
    if err := m.store.UpdateHoldStatus(ctx, holdID, status); err != nil {
        log.Printf("hold: persist status %s for %s failed: %v", status, holdID, err)
    }
}
