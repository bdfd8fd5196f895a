// Package booking drives a checkout end to end: it validates the
// requested seats, acquires a hold, hands the payment off to the
// external gateway and commits or rolls back the seat ledger when the
// outcome arrives.  All methods are safe for concurrent use; per-booking
// critical sections are guarded by a per-booking mutex so unrelated
// bookings never serialize on each other.
package booking

import (
    "context"
    "errors"
    "fmt"
    "log"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/cinecore/movie-booking/internal/catalog"
    "github.com/cinecore/movie-booking/internal/hold"
    "github.com/cinecore/movie-booking/internal/ledger"
    "github.com/cinecore/movie-booking/internal/model"
)

// ErrBookingNotFound indicates the booking id is unknown.
var ErrBookingNotFound = errors.New("booking not found")

// ErrBookingExpiredDuringPayment is returned by Finalize when a payment
// succeeded after the backing hold already expired.  The booking is
// cancelled; the caller must initiate a refund.
var ErrBookingExpiredDuringPayment = errors.New("booking expired during payment")

// ErrCapacityExceeded rejects a booking request that would push the
// show's booked seats past the screen capacity.  The ledger invariants
// should make this unreachable; it exists as a defensive check and is
// fatal only to the single request.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrShowNotBookable rejects requests for shows that are not open for
// booking (completed, cancelled or already started).
var ErrShowNotBookable = errors.New("show not bookable")

// ErrShowStarted rejects a cancellation after the show has begun.
var ErrShowStarted = errors.New("show already started")

// ErrNotCancellable rejects a cancellation of a completed booking.
var ErrNotCancellable = errors.New("booking not cancellable")

// ErrNotPending is returned when a payment hand-off or hold extension is
// attempted on a booking that is no longer PENDING.
var ErrNotPending = errors.New("booking not pending")

// PaymentGateway is the external payment collaborator.  RequestPayment
// returns immediately with an opaque reference; the outcome arrives
// later through the payment reconciler.
type PaymentGateway interface {
    RequestPayment(ctx context.Context, bookingID string, amountCents uint32, method model.PaymentMethod) (string, error)
    Refund(ctx context.Context, bookingID, paymentRef string, amountCents uint32) error
}

// Notifier emits fire-and-forget booking lifecycle events.  Delivery
// failures must never affect booking state, so the methods return
// nothing; implementations log their own errors.
type Notifier interface {
    BookingConfirmed(ctx context.Context, b model.Booking)
    BookingCancelled(ctx context.Context, b model.Booking)
}

// Store durably records bookings.  Like the ledger journal, writes are
// best effort from the core's point of view: failures are logged and the
// in-memory state stays authoritative.  Reads back the durable row for
// bookings that have left the in-memory registry.
type Store interface {
    SaveBooking(ctx context.Context, b model.Booking) error
    UpdateBooking(ctx context.Context, b model.Booking) error
    GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
}

// terminalRetention is how long a terminal booking stays in the registry
// before eviction.  Inside the window duplicate outcome events and
// status queries resolve in memory; afterwards reads fall through to the
// durable store.
const terminalRetention = 10 * time.Minute

// entry wraps one booking with its own lock so that Finalize, cancel and
// extension calls for the same booking serialize without a global lock.
type entry struct {
    mu sync.Mutex
    b  model.Booking
}

// Orchestrator coordinates holds, the ledger and the external payment
// and notification collaborators for every live booking.
type Orchestrator struct {
    ledger   *ledger.Ledger
    holds    *hold.Manager
    catalog  catalog.Catalog
    payments PaymentGateway
    notifier Notifier
    store    Store // may be nil
    holdTTL  time.Duration

    retention time.Duration

    mu       sync.RWMutex
    bookings map[string]*entry
}

// NewOrchestrator wires the orchestrator.  notifier and store may be nil;
// ledger, holds, catalog and payments must not be.
func NewOrchestrator(l *ledger.Ledger, holds *hold.Manager, cat catalog.Catalog, payments PaymentGateway, notifier Notifier, store Store, holdTTL time.Duration) *Orchestrator {
    if l == nil || holds == nil || cat == nil || payments == nil {
        panic("nil dependency passed to NewOrchestrator")
    }
    return &Orchestrator{
        ledger:    l,
        holds:     holds,
        catalog:   cat,
        payments:  payments,
        notifier:  notifier,
        store:     store,
        holdTTL:   holdTTL,
        retention: terminalRetention,
        bookings:  make(map[string]*entry),
    }
}

// dedupe drops zero and repeated seat ids while keeping request order.
func dedupe(seatIDs []uint64) []uint64 {
    out := make([]uint64, 0, len(seatIDs))
    seen := make(map[uint64]struct{}, len(seatIDs))
    for _, id := range seatIDs {
        if id == 0 {
            continue
        }
        if _, ok := seen[id]; !ok {
            seen[id] = struct{}{}
            out = append(out, id)
        }
    }
    return out
}

// StartBooking validates the request, acquires a hold on the seats and
// creates a PENDING booking backed by that hold.  On a seat conflict no
// booking is created and the returned *ledger.ConflictError names the
// unavailable seats.
func (o *Orchestrator) StartBooking(ctx context.Context, showID uint64, seatIDs []uint64, customerID uint64) (model.Booking, error) {
    seatIDs = dedupe(seatIDs)
    if len(seatIDs) == 0 {
        return model.Booking{}, fmt.Errorf("booking: empty seat set")
    }

    show, err := o.catalog.GetShow(ctx, showID)
    if err != nil {
        return model.Booking{}, err
    }
    if show.Status != model.ShowScheduled || !show.StartsAt.After(time.Now().UTC()) {
        return model.Booking{}, ErrShowNotBookable
    }

    // Defensive: the ledger invariants already cap booked seats at the
    // screen capacity, so this can only trip on corrupted seed data.
    booked, capacity, err := o.ledger.BookedCount(showID)
    if err != nil {
        return model.Booking{}, err
    }
    if booked+uint32(len(seatIDs)) > capacity {
        return model.Booking{}, ErrCapacityExceeded
    }

    h, err := o.holds.Acquire(ctx, showID, seatIDs, customerID, o.holdTTL)
    if err != nil {
        return model.Booking{}, err
    }

    prices, err := o.ledger.Prices(showID, seatIDs)
    if err != nil {
        _ = o.holds.Cancel(ctx, h.ID)
        return model.Booking{}, err
    }
    var total uint32
    for _, id := range seatIDs {
        total += prices[id]
    }

    now := time.Now().UTC()
    b := model.Booking{
        ID:               uuid.NewString(),
        ShowID:           showID,
        CustomerID:       customerID,
        HoldID:           h.ID,
        SeatIDs:          append([]uint64(nil), seatIDs...),
        Status:           model.BookingPending,
        TotalAmountCents: total,
        CreatedAt:        now,
        UpdatedAt:        now,
    }

    o.mu.Lock()
    o.bookings[b.ID] = &entry{b: b}
    o.mu.Unlock()

    o.persist(ctx, b, true)
    return b, nil
}

// AwaitPayment hands the booking off to the payment gateway and returns
// the gateway's opaque reference.  It does not block waiting for the
// outcome; the reconciler finalizes the booking when the outcome event
// arrives.
func (o *Orchestrator) AwaitPayment(ctx context.Context, bookingID string, method model.PaymentMethod) (string, error) {
    e, err := o.entry(bookingID)
    if err != nil {
        return "", err
    }
    e.mu.Lock()
    if e.b.Status != model.BookingPending {
        e.mu.Unlock()
        return "", ErrNotPending
    }
    b := e.b
    e.mu.Unlock()

    // The gateway call happens outside every lock: it is out of process
    // and must never block a ledger or booking mutation.
    ref, err := o.payments.RequestPayment(ctx, b.ID, b.TotalAmountCents, method)
    if err != nil {
        return "", err
    }

    // The booking may have left PENDING while the gateway call was in
    // flight (the outcome webhook can land first).  Only a booking that
    // is still PENDING takes the reference; a terminal booking keeps its
    // state and its durable row untouched.
    e.mu.Lock()
    updated := e.b.Status == model.BookingPending
    if updated {
        e.b.PaymentRef = ref
        e.b.UpdatedAt = time.Now().UTC()
        b = e.b
    }
    e.mu.Unlock()
    if updated {
        o.persist(ctx, b, false)
    }
    return ref, nil
}

// Finalize applies a payment outcome to a PENDING booking.  It is
// idempotent per booking: once the booking is terminal (or confirmed),
// further calls are no-ops rather than errors, which makes at-least-once
// outcome delivery safe.
//
// On SUCCEEDED the backing hold is committed first; that claim is the
// single decision point against the hold's expiry, so the subsequent
// HELD→BOOKED ledger transition cannot race the expiry release.  If the
// expiry won, the booking is cancelled and
// ErrBookingExpiredDuringPayment tells the caller to refund.
func (o *Orchestrator) Finalize(ctx context.Context, bookingID string, outcome model.PaymentOutcome) error {
    e, err := o.entry(bookingID)
    if err != nil {
        return err
    }
    e.mu.Lock()
    if e.b.Status != model.BookingPending {
        e.mu.Unlock()
        return nil
    }
    if outcome.AmountCents != e.b.TotalAmountCents {
        log.Printf("booking: %s outcome amount %d differs from booked total %d", bookingID, outcome.AmountCents, e.b.TotalAmountCents)
    }

    switch outcome.Result {
    case model.PaymentSucceeded:
        seats, err := o.holds.Commit(ctx, e.b.HoldID)
        if err != nil {
            // The expiry fired before the payment settled; the seats are
            // already back in circulation and may belong to someone else.
            cancelled := o.cancelLocked(ctx, e)
            e.mu.Unlock()
            o.notifyCancelled(ctx, cancelled)
            return ErrBookingExpiredDuringPayment
        }
        if err := o.ledger.TryTransition(ctx, e.b.ShowID, seats, []model.SeatState{model.SeatHeld}, model.SeatBooked, e.b.ID); err != nil {
            // Unreachable while the hold claim holds; treat as a failed
            // checkout rather than leaving seats stranded in HELD.
            if _, relErr := o.ledger.Release(ctx, e.b.ShowID, seats, e.b.HoldID); relErr != nil {
                log.Printf("booking: release after failed book of %s: %v", bookingID, relErr)
            }
            cancelled := o.cancelLocked(ctx, e)
            e.mu.Unlock()
            o.notifyCancelled(ctx, cancelled)
            return fmt.Errorf("booking: ledger transition for %s: %w", bookingID, err)
        }
        e.b.Status = model.BookingConfirmed
        e.b.UpdatedAt = time.Now().UTC()
        o.persist(ctx, e.b, false)
        confirmed := e.b
        e.mu.Unlock()
        o.notifyConfirmed(ctx, confirmed)
        return nil

    case model.PaymentFailed:
        if err := o.holds.Cancel(ctx, e.b.HoldID); err != nil {
            log.Printf("booking: cancel hold %s for %s: %v", e.b.HoldID, bookingID, err)
        }
        cancelled := o.cancelLocked(ctx, e)
        e.mu.Unlock()
        o.notifyCancelled(ctx, cancelled)
        return nil

    default:
        e.mu.Unlock()
        return fmt.Errorf("booking: unknown payment result %q", outcome.Result)
    }
}

// CancelBooking cancels a PENDING or CONFIRMED booking before the show
// starts, releasing every seat in the set atomically.  A confirmed, paid
// booking additionally triggers a refund through the gateway.
// Cancelling an already cancelled booking is a no-op.
func (o *Orchestrator) CancelBooking(ctx context.Context, bookingID string) error {
    e, err := o.entry(bookingID)
    if err != nil {
        // An evicted booking is terminal; keep cancel idempotent for
        // CANCELLED rows and reject COMPLETED ones the same way as for
        // in-memory bookings.
        if o.store != nil {
            if b, serr := o.store.GetBooking(ctx, bookingID); serr == nil {
                switch b.Status {
                case model.BookingCancelled:
                    return nil
                case model.BookingCompleted:
                    return ErrNotCancellable
                }
            }
        }
        return err
    }
    e.mu.Lock()

    switch e.b.Status {
    case model.BookingCancelled:
        e.mu.Unlock()
        return nil
    case model.BookingCompleted:
        e.mu.Unlock()
        return ErrNotCancellable
    case model.BookingPending:
        if err := o.holds.Cancel(ctx, e.b.HoldID); err != nil {
            e.mu.Unlock()
            return err
        }
        cancelled := o.cancelLocked(ctx, e)
        e.mu.Unlock()
        o.notifyCancelled(ctx, cancelled)
        return nil
    case model.BookingConfirmed:
        show, err := o.catalog.GetShow(ctx, e.b.ShowID)
        if err != nil {
            e.mu.Unlock()
            return err
        }
        if !show.StartsAt.After(time.Now().UTC()) {
            e.mu.Unlock()
            return ErrShowStarted
        }
        if _, err := o.ledger.Release(ctx, e.b.ShowID, e.b.SeatIDs, e.b.ID); err != nil {
            e.mu.Unlock()
            return err
        }
        if e.b.PaymentRef != "" {
            if err := o.payments.Refund(ctx, e.b.ID, e.b.PaymentRef, e.b.TotalAmountCents); err != nil {
                log.Printf("booking: refund for %s failed: %v", bookingID, err)
            }
        }
        cancelled := o.cancelLocked(ctx, e)
        e.mu.Unlock()
        o.notifyCancelled(ctx, cancelled)
        return nil
    }
    status := e.b.Status
    e.mu.Unlock()
    return fmt.Errorf("booking: %s in unknown status %q", bookingID, status)
}

// Refund replays the refund for a booking whose payment settled after the
// hold expired.  The reconciler calls it when Finalize surfaces
// ErrBookingExpiredDuringPayment.
func (o *Orchestrator) Refund(ctx context.Context, bookingID string, amountCents uint32) error {
    e, err := o.entry(bookingID)
    if err != nil {
        return err
    }
    e.mu.Lock()
    ref := e.b.PaymentRef
    e.mu.Unlock()
    return o.payments.Refund(ctx, bookingID, ref, amountCents)
}

// Complete marks a confirmed booking COMPLETED once the show has run.
// The trigger is external (the scheduling side sweeps finished shows).
// Completing an already completed booking is a no-op.
func (o *Orchestrator) Complete(ctx context.Context, bookingID string) error {
    e, err := o.entry(bookingID)
    if err != nil {
        return err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    switch e.b.Status {
    case model.BookingCompleted:
        return nil
    case model.BookingConfirmed:
        e.b.Status = model.BookingCompleted
        e.b.UpdatedAt = time.Now().UTC()
        o.persist(ctx, e.b, false)
        o.scheduleEvict(e.b.ID)
        return nil
    }
    return fmt.Errorf("booking: cannot complete %s in status %s", bookingID, e.b.Status)
}

// ExtendHold pushes the booking's hold expiry out by ttl while the
// booking is still awaiting payment.
func (o *Orchestrator) ExtendHold(bookingID string, ttl time.Duration) (time.Time, error) {
    e, err := o.entry(bookingID)
    if err != nil {
        return time.Time{}, err
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.b.Status != model.BookingPending {
        return time.Time{}, ErrNotPending
    }
    return o.holds.Extend(e.b.HoldID, ttl)
}

// GetBooking returns a copy of the booking.  Bookings no longer in the
// registry (evicted after their retention window, or created by an
// earlier process) are served from the durable store when one is
// configured.
func (o *Orchestrator) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
    if e, err := o.entry(bookingID); err == nil {
        e.mu.Lock()
        defer e.mu.Unlock()
        b := e.b
        b.SeatIDs = append([]uint64(nil), e.b.SeatIDs...)
        return b, nil
    }
    if o.store != nil {
        b, err := o.store.GetBooking(ctx, bookingID)
        if err == nil {
            return b, nil
        }
    }
    return model.Booking{}, ErrBookingNotFound
}

func (o *Orchestrator) entry(bookingID string) (*entry, error) {
    o.mu.RLock()
    e, ok := o.bookings[bookingID]
    o.mu.RUnlock()
    if !ok {
        return nil, ErrBookingNotFound
    }
    return e, nil
}

// cancelLocked flips the booking to CANCELLED and returns a copy for
// notification once the caller has dropped e.mu.  Caller holds e.mu.
func (o *Orchestrator) cancelLocked(ctx context.Context, e *entry) model.Booking {
    e.b.Status = model.BookingCancelled
    e.b.UpdatedAt = time.Now().UTC()
    o.persist(ctx, e.b, false)
    o.scheduleEvict(e.b.ID)
    return e.b
}

// Notifications go out after the per-booking lock is released: the
// publisher dials the broker, and a slow broker must not stall further
// operations on the booking.
func (o *Orchestrator) notifyConfirmed(ctx context.Context, b model.Booking) {
    if o.notifier != nil {
        o.notifier.BookingConfirmed(ctx, b)
    }
}

func (o *Orchestrator) notifyCancelled(ctx context.Context, b model.Booking) {
    if o.notifier != nil {
        o.notifier.BookingCancelled(ctx, b)
    }
}

// scheduleEvict drops a terminal booking from the registry after the
// retention window.  The status is re-checked at fire time.
func (o *Orchestrator) scheduleEvict(bookingID string) {
    time.AfterFunc(o.retention, func() {
        o.mu.Lock()
        defer o.mu.Unlock()
        e, ok := o.bookings[bookingID]
        if !ok {
            return
        }
        e.mu.Lock()
        terminal := e.b.Status.Terminal()
        e.mu.Unlock()
        if terminal {
            delete(o.bookings, bookingID)
        }
    })
}

func (o *Orchestrator) persist(ctx context.Context, b model.Booking, create bool) {
    if o.store == nil {
        return
    }
    var err error
    if create {
        err = o.store.SaveBooking(ctx, b)
    } else {
        err = o.store.UpdateBooking(ctx, b)
    }
    if err != nil {
        log.Printf("booking: persist %s failed: %v", b.ID, err)
    }
}
