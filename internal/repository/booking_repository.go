package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/cinecore/movie-booking/internal/model"
)

// BookingRepo persists bookings and their owned seat sets.  It
// implements booking.Store.  A booking row plus its booking_seats rows
// are written together in one transaction so a crash can never leave a
// booking without its seats.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// SaveBooking inserts the booking and its seat rows atomically.
func (r *BookingRepo) SaveBooking(ctx context.Context, b model.Booking) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const ins = `INSERT INTO bookings (id, show_id, customer_id, hold_id, status, total_amount_cents, payment_ref, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, ins, b.ID, b.ShowID, b.CustomerID, b.HoldID, string(b.Status), b.TotalAmountCents, b.PaymentRef, b.CreatedAt.UTC(), b.UpdatedAt.UTC()); err != nil {
        return err
    }

    if len(b.SeatIDs) > 0 {
        query := `INSERT INTO booking_seats (booking_id, show_id, seat_id) VALUES `
        args := make([]interface{}, 0, len(b.SeatIDs)*3)
        for i, seatID := range b.SeatIDs {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?)"
            args = append(args, b.ID, b.ShowID, seatID)
        }
        if _, err := tx.ExecContext(ctx, query, args...); err != nil {
            return err
        }
    }

    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// UpdateBooking records a status or payment reference change.  The seat
// set is immutable after creation and is deliberately not touched here.
func (r *BookingRepo) UpdateBooking(ctx context.Context, b model.Booking) error {
    const q = `UPDATE bookings SET status = ?, payment_ref = ?, updated_at = ? WHERE id = ?`
    res, err := r.db.ExecContext(ctx, q, string(b.Status), b.PaymentRef, b.UpdatedAt.UTC(), b.ID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return fmt.Errorf("%w: booking %s", ErrNotFound, b.ID)
    }
    return nil
}

// GetBooking loads one booking with its seat ids.  Used by operational
// tooling and post-crash reconciliation, not by the hot path.
func (r *BookingRepo) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
    const q = `SELECT id, show_id, customer_id, hold_id, status, total_amount_cents, payment_ref, created_at, updated_at
               FROM bookings WHERE id = ?`
    var (
        b      model.Booking
        status string
    )
    err := r.db.QueryRowContext(ctx, q, bookingID).Scan(&b.ID, &b.ShowID, &b.CustomerID, &b.HoldID, &status, &b.TotalAmountCents, &b.PaymentRef, &b.CreatedAt, &b.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
    }
    if err != nil {
        return model.Booking{}, err
    }
    b.Status = model.BookingStatus(status)

    const qs = `SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`
    rows, err := r.db.QueryContext(ctx, qs, bookingID)
    if err != nil {
        return model.Booking{}, err
    }
    defer rows.Close()
    for rows.Next() {
        var seatID uint64
        if err := rows.Scan(&seatID); err != nil {
            return model.Booking{}, err
        }
        b.SeatIDs = append(b.SeatIDs, seatID)
    }
    return b, rows.Err()
}
