package booking

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/cinecore/movie-booking/internal/catalog"
    "github.com/cinecore/movie-booking/internal/hold"
    "github.com/cinecore/movie-booking/internal/ledger"
    "github.com/cinecore/movie-booking/internal/model"
)

// fakeCatalog serves a fixed set of shows and seats.
type fakeCatalog struct {
    shows map[uint64]model.Show
    seats map[uint64][]catalog.SeatInfo
}

func (f *fakeCatalog) GetShow(_ context.Context, showID uint64) (model.Show, error) {
    sh, ok := f.shows[showID]
    if !ok {
        return model.Show{}, catalog.ErrShowNotFound
    }
    return sh, nil
}

func (f *fakeCatalog) GetSeatSlots(_ context.Context, showID uint64) ([]catalog.SeatInfo, error) {
    return f.seats[showID], nil
}

func (f *fakeCatalog) ListBookableShows(_ context.Context) ([]uint64, error) {
    ids := make([]uint64, 0, len(f.shows))
    for id := range f.shows {
        ids = append(ids, id)
    }
    return ids, nil
}

// fakeGateway records charges and refunds.
type fakeGateway struct {
    mu      sync.Mutex
    charges []string
    refunds []string
}

func (g *fakeGateway) RequestPayment(_ context.Context, bookingID string, _ uint32, _ model.PaymentMethod) (string, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.charges = append(g.charges, bookingID)
    return "ref-" + bookingID, nil
}

func (g *fakeGateway) Refund(_ context.Context, bookingID, _ string, _ uint32) error {
    g.mu.Lock()
    defer g.mu.Unlock()
    g.refunds = append(g.refunds, bookingID)
    return nil
}

func (g *fakeGateway) refundCount() int {
    g.mu.Lock()
    defer g.mu.Unlock()
    return len(g.refunds)
}

// fakeNotifier counts emitted lifecycle events.
type fakeNotifier struct {
    mu        sync.Mutex
    confirmed []string
    cancelled []string
}

func (n *fakeNotifier) BookingConfirmed(_ context.Context, b model.Booking) {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.confirmed = append(n.confirmed, b.ID)
}

func (n *fakeNotifier) BookingCancelled(_ context.Context, b model.Booking) {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.cancelled = append(n.cancelled, b.ID)
}

// memStore records every durable write and serves reads, standing in for
// the MySQL-backed store.
type memStore struct {
    mu       sync.Mutex
    updates  []model.BookingStatus
    bookings map[string]model.Booking
}

func newMemStore() *memStore {
    return &memStore{bookings: make(map[string]model.Booking)}
}

func (s *memStore) SaveBooking(_ context.Context, b model.Booking) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.bookings[b.ID] = b
    return nil
}

func (s *memStore) UpdateBooking(_ context.Context, b model.Booking) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.updates = append(s.updates, b.Status)
    s.bookings[b.ID] = b
    return nil
}

func (s *memStore) GetBooking(_ context.Context, bookingID string) (model.Booking, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    b, ok := s.bookings[bookingID]
    if !ok {
        return model.Booking{}, ErrBookingNotFound
    }
    return b, nil
}

func (s *memStore) updateHistory() []model.BookingStatus {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]model.BookingStatus(nil), s.updates...)
}

type fixture struct {
    ledger   *ledger.Ledger
    holds    *hold.Manager
    gateway  *fakeGateway
    notifier *fakeNotifier
    orch     *Orchestrator
}

// newFixture builds a show with seats {1,2,3} at 1000 cents each,
// capacity 3, starting in one hour.
func newFixture(t *testing.T, holdTTL time.Duration) *fixture {
    t.Helper()
    l := ledger.New(nil)
    require.NoError(t, l.RegisterShow(1, 3, []ledger.SeatSeed{
        {SeatID: 1, PriceCents: 1000},
        {SeatID: 2, PriceCents: 1000},
        {SeatID: 3, PriceCents: 1000},
    }))
    cat := &fakeCatalog{
        shows: map[uint64]model.Show{
            1: {
                ID:              1,
                ScreenID:        10,
                SeatingCapacity: 3,
                StartsAt:        time.Now().UTC().Add(time.Hour),
                EndsAt:          time.Now().UTC().Add(3 * time.Hour),
                Status:          model.ShowScheduled,
            },
        },
        seats: map[uint64][]catalog.SeatInfo{
            1: {{SeatID: 1, PriceCents: 1000}, {SeatID: 2, PriceCents: 1000}, {SeatID: 3, PriceCents: 1000}},
        },
    }
    holds := hold.NewManager(l, nil)
    gw := &fakeGateway{}
    nt := &fakeNotifier{}
    orch := NewOrchestrator(l, holds, cat, gw, nt, nil, holdTTL)
    return &fixture{ledger: l, holds: holds, gateway: gw, notifier: nt, orch: orch}
}

func (f *fixture) states(t *testing.T) map[uint64]model.SeatState {
    t.Helper()
    states, err := f.ledger.GetStates(1, nil)
    require.NoError(t, err)
    return states
}

func (f *fixture) outcome(bookingID string, result model.PaymentResult, amount uint32) model.PaymentOutcome {
    return model.PaymentOutcome{BookingID: bookingID, Result: result, AmountCents: amount, OccurredAt: time.Now().UTC()}
}

func TestCheckoutScenario(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    // Customer X holds seats {1,2}.
    bx, err := f.orch.StartBooking(ctx, 1, []uint64{1, 2}, 100)
    require.NoError(t, err)
    assert.Equal(t, model.BookingPending, bx.Status)
    assert.Equal(t, uint32(2000), bx.TotalAmountCents)

    // Customer Y collides on seat 2 only; seat 3 stays untouched.
    _, err = f.orch.StartBooking(ctx, 1, []uint64{2, 3}, 200)
    var conflict *ledger.ConflictError
    require.ErrorAs(t, err, &conflict)
    assert.Equal(t, []uint64{2}, conflict.SeatIDs)
    assert.Equal(t, model.SeatAvailable, f.states(t)[3])

    // X pays; the booking confirms and seats move to BOOKED.
    require.NoError(t, f.orch.Finalize(ctx, bx.ID, f.outcome(bx.ID, model.PaymentSucceeded, 2000)))
    got, err := f.orch.GetBooking(ctx, bx.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingConfirmed, got.Status)
    states := f.states(t)
    assert.Equal(t, model.SeatBooked, states[1])
    assert.Equal(t, model.SeatBooked, states[2])

    // Y retries with seat 3 and succeeds.
    by, err := f.orch.StartBooking(ctx, 1, []uint64{3}, 200)
    require.NoError(t, err)
    require.NoError(t, f.orch.Finalize(ctx, by.ID, f.outcome(by.ID, model.PaymentSucceeded, 1000)))

    booked, capacity, err := f.ledger.BookedCount(1)
    require.NoError(t, err)
    assert.Equal(t, capacity, booked, "all seats booked, exactly at capacity")
    assert.Len(t, f.notifier.confirmed, 2)
}

func TestStartBookingValidation(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    _, err := f.orch.StartBooking(ctx, 1, nil, 100)
    require.Error(t, err)

    _, err = f.orch.StartBooking(ctx, 42, []uint64{1}, 100)
    assert.ErrorIs(t, err, catalog.ErrShowNotFound)

    // Requesting more seats than the screen has trips the defensive
    // capacity check before any hold is taken.
    _, err = f.orch.StartBooking(ctx, 1, []uint64{1, 2, 3, 4}, 100)
    assert.ErrorIs(t, err, ErrCapacityExceeded)
    for _, st := range f.states(t) {
        assert.Equal(t, model.SeatAvailable, st)
    }
}

func TestFinalizeIdempotent(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)

    out := f.outcome(b.ID, model.PaymentSucceeded, 1000)
    require.NoError(t, f.orch.Finalize(ctx, b.ID, out))
    require.NoError(t, f.orch.Finalize(ctx, b.ID, out), "second delivery must be a no-op")

    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingConfirmed, got.Status)
    assert.Len(t, f.notifier.confirmed, 1, "only one confirmation event")
}

func TestFinalizeFailedPaymentCancels(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1, 2}, 100)
    require.NoError(t, err)

    require.NoError(t, f.orch.Finalize(ctx, b.ID, f.outcome(b.ID, model.PaymentFailed, 2000)))

    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingCancelled, got.Status)
    states := f.states(t)
    assert.Equal(t, model.SeatAvailable, states[1])
    assert.Equal(t, model.SeatAvailable, states[2])
    assert.Len(t, f.notifier.cancelled, 1)
}

func TestFinalizeAfterHoldExpiry(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 15*time.Millisecond)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)

    // Let the hold expire before the payment settles.
    require.Eventually(t, func() bool {
        return f.states(t)[1] == model.SeatAvailable
    }, time.Second, 5*time.Millisecond)

    err = f.orch.Finalize(ctx, b.ID, f.outcome(b.ID, model.PaymentSucceeded, 1000))
    assert.ErrorIs(t, err, ErrBookingExpiredDuringPayment)

    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingCancelled, got.Status)
    assert.Equal(t, model.SeatAvailable, f.states(t)[1])
}

func TestCancelPendingBooking(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1, 2}, 100)
    require.NoError(t, err)

    require.NoError(t, f.orch.CancelBooking(ctx, b.ID))
    states := f.states(t)
    assert.Equal(t, model.SeatAvailable, states[1])
    assert.Equal(t, model.SeatAvailable, states[2])

    // Cancelling again is a no-op.
    require.NoError(t, f.orch.CancelBooking(ctx, b.ID))
    assert.Len(t, f.notifier.cancelled, 1)
}

func TestCancelConfirmedBookingRefunds(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1, 2}, 100)
    require.NoError(t, err)
    _, err = f.orch.AwaitPayment(ctx, b.ID, model.PayUPI)
    require.NoError(t, err)
    require.NoError(t, f.orch.Finalize(ctx, b.ID, f.outcome(b.ID, model.PaymentSucceeded, 2000)))

    require.NoError(t, f.orch.CancelBooking(ctx, b.ID))

    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingCancelled, got.Status)
    assert.Equal(t, 1, f.gateway.refundCount(), "paid booking must be refunded")
    states := f.states(t)
    assert.Equal(t, model.SeatAvailable, states[1])
    assert.Equal(t, model.SeatAvailable, states[2])
}

func TestCompleteLifecycle(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)
    require.NoError(t, f.orch.Finalize(ctx, b.ID, f.outcome(b.ID, model.PaymentSucceeded, 1000)))

    require.NoError(t, f.orch.Complete(ctx, b.ID))
    require.NoError(t, f.orch.Complete(ctx, b.ID), "repeat completion is a no-op")

    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingCompleted, got.Status)

    assert.ErrorIs(t, f.orch.CancelBooking(ctx, b.ID), ErrNotCancellable)
}

func TestConcurrentOverlappingBookings(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    const racers = 16
    var wg sync.WaitGroup
    winners := make(chan string, racers)
    for i := 0; i < racers; i++ {
        wg.Add(1)
        go func(customer uint64) {
            defer wg.Done()
            b, err := f.orch.StartBooking(ctx, 1, []uint64{2}, customer)
            if err == nil {
                winners <- b.ID
                return
            }
            var conflict *ledger.ConflictError
            assert.ErrorAs(t, err, &conflict)
        }(uint64(i + 1))
    }
    wg.Wait()
    close(winners)

    count := 0
    for range winners {
        count++
    }
    assert.Equal(t, 1, count, "one winner per contended seat")
}

func TestExtendHoldOnlyWhilePending(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)

    _, err = f.orch.ExtendHold(b.ID, time.Minute)
    require.NoError(t, err)

    require.NoError(t, f.orch.Finalize(ctx, b.ID, f.outcome(b.ID, model.PaymentSucceeded, 1000)))
    _, err = f.orch.ExtendHold(b.ID, time.Minute)
    assert.ErrorIs(t, err, ErrNotPending)
}

// oneSeatShow builds a ledger and catalog with a single 1000-cent seat
// for tests that wire their own gateway, notifier or store.
func oneSeatShow(t *testing.T) (*ledger.Ledger, *fakeCatalog) {
    t.Helper()
    l := ledger.New(nil)
    require.NoError(t, l.RegisterShow(1, 1, []ledger.SeatSeed{{SeatID: 1, PriceCents: 1000}}))
    cat := &fakeCatalog{
        shows: map[uint64]model.Show{
            1: {
                ID:              1,
                ScreenID:        10,
                SeatingCapacity: 1,
                StartsAt:        time.Now().UTC().Add(time.Hour),
                EndsAt:          time.Now().UTC().Add(3 * time.Hour),
                Status:          model.ShowScheduled,
            },
        },
        seats: map[uint64][]catalog.SeatInfo{1: {{SeatID: 1, PriceCents: 1000}}},
    }
    return l, cat
}

// blockingGateway parks RequestPayment until released, signalling entry
// so tests can interleave deterministically.
type blockingGateway struct {
    fakeGateway
    entered chan struct{}
    release chan struct{}
}

func (g *blockingGateway) RequestPayment(ctx context.Context, bookingID string, amount uint32, method model.PaymentMethod) (string, error) {
    close(g.entered)
    <-g.release
    return g.fakeGateway.RequestPayment(ctx, bookingID, amount, method)
}

func TestAwaitPaymentKeepsTerminalRowIntact(t *testing.T) {
    ctx := context.Background()
    l, cat := oneSeatShow(t)
    holds := hold.NewManager(l, nil)
    gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
    store := newMemStore()
    orch := NewOrchestrator(l, holds, cat, gw, &fakeNotifier{}, store, time.Minute)

    b, err := orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)

    done := make(chan struct{})
    go func() {
        defer close(done)
        _, _ = orch.AwaitPayment(ctx, b.ID, model.PayUPI)
    }()
    <-gw.entered

    // The failure outcome lands while the gateway call is still in
    // flight and cancels the booking.
    require.NoError(t, orch.Finalize(ctx, b.ID, model.PaymentOutcome{
        BookingID: b.ID, Result: model.PaymentFailed, AmountCents: 1000, OccurredAt: time.Now().UTC(),
    }))
    close(gw.release)
    <-done

    // The returning gateway call must not write its stale PENDING
    // snapshot over the cancelled row.
    assert.Equal(t, []model.BookingStatus{model.BookingCancelled}, store.updateHistory())
    got, err := orch.GetBooking(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, got.Status)
    assert.Empty(t, got.PaymentRef)
}

func TestEvictedBookingServedFromStore(t *testing.T) {
    ctx := context.Background()
    l, cat := oneSeatShow(t)
    holds := hold.NewManager(l, nil)
    store := newMemStore()
    orch := NewOrchestrator(l, holds, cat, &fakeGateway{}, &fakeNotifier{}, store, time.Minute)
    orch.retention = 10 * time.Millisecond

    b, err := orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)
    require.NoError(t, orch.Finalize(ctx, b.ID, model.PaymentOutcome{
        BookingID: b.ID, Result: model.PaymentFailed, AmountCents: 1000, OccurredAt: time.Now().UTC(),
    }))

    require.Eventually(t, func() bool {
        orch.mu.RLock()
        defer orch.mu.RUnlock()
        _, ok := orch.bookings[b.ID]
        return !ok
    }, time.Second, 5*time.Millisecond, "terminal booking should leave the registry")

    got, err := orch.GetBooking(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, got.Status)

    // Cancel stays idempotent for the evicted, already-cancelled row.
    require.NoError(t, orch.CancelBooking(ctx, b.ID))
}

// reentrantNotifier reads the booking back through the orchestrator from
// inside the callback, which only works when events are emitted after
// the per-booking lock is released.
type reentrantNotifier struct {
    orch *Orchestrator
    mu   sync.Mutex
    seen []model.BookingStatus
}

func (n *reentrantNotifier) record(ctx context.Context, bookingID string) {
    got, err := n.orch.GetBooking(ctx, bookingID)
    if err != nil {
        return
    }
    n.mu.Lock()
    n.seen = append(n.seen, got.Status)
    n.mu.Unlock()
}

func (n *reentrantNotifier) BookingConfirmed(ctx context.Context, b model.Booking) {
    n.record(ctx, b.ID)
}

func (n *reentrantNotifier) BookingCancelled(ctx context.Context, b model.Booking) {
    n.record(ctx, b.ID)
}

func TestNotificationsEmittedOutsideBookingLock(t *testing.T) {
    ctx := context.Background()
    l, cat := oneSeatShow(t)
    holds := hold.NewManager(l, nil)
    nt := &reentrantNotifier{}
    orch := NewOrchestrator(l, holds, cat, &fakeGateway{}, nt, nil, time.Minute)
    nt.orch = orch

    b, err := orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)
    require.NoError(t, orch.Finalize(ctx, b.ID, model.PaymentOutcome{
        BookingID: b.ID, Result: model.PaymentSucceeded, AmountCents: 1000, OccurredAt: time.Now().UTC(),
    }))
    require.NoError(t, orch.CancelBooking(ctx, b.ID))

    nt.mu.Lock()
    defer nt.mu.Unlock()
    assert.Equal(t, []model.BookingStatus{model.BookingConfirmed, model.BookingCancelled}, nt.seen)
}
