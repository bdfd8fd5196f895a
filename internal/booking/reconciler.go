package booking

import (
    "context"
    "errors"
    "log"

    "github.com/cinecore/movie-booking/internal/model"
)

// Reconciler bridges asynchronous payment outcomes to Finalize.  The
// payment collaborator delivers outcomes at least once and possibly out
// of order, so the reconciler's job is mostly to decide which deliveries
// still matter: anything for a booking that already left PENDING is a
// duplicate and is dropped with a log line only.
type Reconciler struct {
    orch *Orchestrator
}

// NewReconciler constructs a Reconciler over the orchestrator.
func NewReconciler(orch *Orchestrator) *Reconciler {
    if orch == nil {
        panic("nil orchestrator passed to NewReconciler")
    }
    return &Reconciler{orch: orch}
}

// OnPaymentOutcome applies one delivered outcome.  It returns a non-nil
// error only for infrastructure failures worth redelivering; duplicate
// and unknown-booking events are consumed successfully so the broker
// does not redeliver them forever.
func (r *Reconciler) OnPaymentOutcome(ctx context.Context, ev model.PaymentOutcome) error {
    if !ev.Result.Valid() {
        log.Printf("reconciler: dropping outcome for %s with unknown result %q", ev.BookingID, ev.Result)
        return nil
    }

    b, err := r.orch.GetBooking(ctx, ev.BookingID)
    if err != nil {
        if errors.Is(err, ErrBookingNotFound) {
            log.Printf("reconciler: dropping outcome for unknown booking %s", ev.BookingID)
            return nil
        }
        return err
    }
    if b.Status != model.BookingPending {
        log.Printf("reconciler: duplicate outcome for booking %s (status %s), discarded", ev.BookingID, b.Status)
        return nil
    }

    err = r.orch.Finalize(ctx, ev.BookingID, ev)
    if errors.Is(err, ErrBookingExpiredDuringPayment) {
        // Payment settled after the hold expired: the booking is already
        // cancelled, the money must go back.
        log.Printf("reconciler: booking %s expired during payment, refunding %d cents", ev.BookingID, ev.AmountCents)
        if refundErr := r.orch.Refund(ctx, ev.BookingID, ev.AmountCents); refundErr != nil {
            return refundErr
        }
        return nil
    }
    return err
}
