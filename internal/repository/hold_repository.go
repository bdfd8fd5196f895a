package repository

import (
    "context"
    "database/sql"

    "github.com/cinecore/movie-booking/internal/model"
)

// HoldRepo persists seat holds, one row per held seat, keyed by the hold
// token.  It implements hold.Store.  The rows exist for observability
// and post-crash reconciliation; the in-memory hold manager stays
// authoritative while the process lives, and holds do not survive a
// restart (their seats are released during ledger recovery instead).
type HoldRepo struct {
    db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// SaveHold inserts one row per seat of the hold in a single statement.
func (r *HoldRepo) SaveHold(ctx context.Context, h model.Hold) error {
    if len(h.SeatIDs) == 0 {
        return nil
    }
    query := `INSERT INTO seat_holds (hold_id, show_id, seat_id, customer_id, status, expires_at, created_at) VALUES `
    args := make([]interface{}, 0, len(h.SeatIDs)*7)
    for i, seatID := range h.SeatIDs {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?, ?, ?)"
        args = append(args, h.ID, h.ShowID, seatID, h.CustomerID, string(h.Status), h.ExpiresAt.UTC(), h.CreatedAt.UTC())
    }
    _, err := r.db.ExecContext(ctx, query, args...)
    return err
}

// UpdateHoldStatus records the hold's terminal status on every row of
// the hold.  Updating an unknown hold id affects zero rows and is not an
// error, matching the idempotent semantics of cancel and expiry.
func (r *HoldRepo) UpdateHoldStatus(ctx context.Context, holdID string, status model.HoldStatus) error {
    const q = `UPDATE seat_holds SET status = ? WHERE hold_id = ?`
    _, err := r.db.ExecContext(ctx, q, string(status), holdID)
    return err
}
