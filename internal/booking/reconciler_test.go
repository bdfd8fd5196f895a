package booking

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/cinecore/movie-booking/internal/model"
)

func TestReconcilerAppliesOutcome(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)
    r := NewReconciler(f.orch)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)

    require.NoError(t, r.OnPaymentOutcome(ctx, f.outcome(b.ID, model.PaymentSucceeded, 1000)))
    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingConfirmed, got.Status)
}

func TestReconcilerDiscardsDuplicates(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)
    r := NewReconciler(f.orch)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)

    out := f.outcome(b.ID, model.PaymentSucceeded, 1000)
    require.NoError(t, r.OnPaymentOutcome(ctx, out))
    // Redelivery of the same outcome, and a contradictory late FAILED
    // event, are both discarded without side effects.
    require.NoError(t, r.OnPaymentOutcome(ctx, out))
    require.NoError(t, r.OnPaymentOutcome(ctx, f.outcome(b.ID, model.PaymentFailed, 1000)))

    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingConfirmed, got.Status)
    assert.Len(t, f.notifier.confirmed, 1)
    assert.Empty(t, f.notifier.cancelled)
}

func TestReconcilerUnknownBookingConsumed(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, time.Minute)
    r := NewReconciler(f.orch)

    // Unknown bookings must be consumed, not redelivered forever.
    out := model.PaymentOutcome{BookingID: "nope", Result: model.PaymentSucceeded, AmountCents: 1, OccurredAt: time.Now().UTC()}
    require.NoError(t, r.OnPaymentOutcome(ctx, out))
}

func TestReconcilerRefundsExpiredBooking(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 15*time.Millisecond)
    r := NewReconciler(f.orch)

    b, err := f.orch.StartBooking(ctx, 1, []uint64{1}, 100)
    require.NoError(t, err)
    _, err = f.orch.AwaitPayment(ctx, b.ID, model.PayCreditCard)
    require.NoError(t, err)

    require.Eventually(t, func() bool {
        return f.states(t)[1] == model.SeatAvailable
    }, time.Second, 5*time.Millisecond)

    // Payment settled after the hold expired: booking cancels and the
    // reconciler pushes the refund.
    require.NoError(t, r.OnPaymentOutcome(ctx, f.outcome(b.ID, model.PaymentSucceeded, 1000)))
    got, _ := f.orch.GetBooking(ctx, b.ID)
    assert.Equal(t, model.BookingCancelled, got.Status)
    assert.Equal(t, 1, f.gateway.refundCount())
}
