package repository

import (
    "context"
    "database/sql"

    "github.com/cinecore/movie-booking/internal/ledger"
    "github.com/cinecore/movie-booking/internal/model"
)

// SeatSlotRepo persists committed seat transitions.  It implements
// ledger.Journal.  Each (show_id, seat_id) pair carries a monotonically
// increasing version; the upsert only applies rows with a newer version,
// so late or replayed journal writes can never overwrite a fresher
// state.  On restart LoadShowSlots hands the recorded states back to the
// ledger for replay.
type SeatSlotRepo struct {
    db *sql.DB
}

// NewSeatSlotRepo returns a SeatSlotRepo bound to the provided database.
func NewSeatSlotRepo(db *sql.DB) *SeatSlotRepo { return &SeatSlotRepo{db: db} }

// Record upserts one row per committed slot change in a single
// statement.  The version guard in the ON DUPLICATE KEY clause keeps the
// stored row at the highest version seen, which replays the ledger's
// compare-and-swap semantics durably.
func (r *SeatSlotRepo) Record(ctx context.Context, changes []ledger.SlotChange) error {
    if len(changes) == 0 {
        return nil
    }
    query := `INSERT INTO seat_slots (show_id, seat_id, state, owner_token, version) VALUES `
    args := make([]interface{}, 0, len(changes)*5)
    for i, c := range changes {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?)"
        args = append(args, c.ShowID, c.SeatID, string(c.State), c.OwnerToken, c.Version)
    }
    query += ` ON DUPLICATE KEY UPDATE
               state = IF(VALUES(version) > version, VALUES(state), state),
               owner_token = IF(VALUES(version) > version, VALUES(owner_token), owner_token),
               version = IF(VALUES(version) > version, VALUES(version), version)`
    _, err := r.db.ExecContext(ctx, query, args...)
    return err
}

// LoadShowSlots returns the persisted slot states for a show as ledger
// seeds, merged by the caller with the catalog's seat list.  Shows never
// journalled return an empty slice and nil error.
func (r *SeatSlotRepo) LoadShowSlots(ctx context.Context, showID uint64) ([]ledger.SeatSeed, error) {
    const q = `SELECT seat_id, state, owner_token, version FROM seat_slots WHERE show_id = ?`
    rows, err := r.db.QueryContext(ctx, q, showID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var seeds []ledger.SeatSeed
    for rows.Next() {
        var (
            seed  ledger.SeatSeed
            state string
        )
        if err := rows.Scan(&seed.SeatID, &state, &seed.OwnerToken, &seed.Version); err != nil {
            return nil, err
        }
        seed.State = model.SeatState(state)
        if !seed.State.Valid() {
            continue // skip rows this service did not write
        }
        seeds = append(seeds, seed)
    }
    return seeds, rows.Err()
}
