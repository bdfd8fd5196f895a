package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/cinecore/movie-booking/internal/catalog"
    "github.com/cinecore/movie-booking/internal/model"
)

// CatalogRepo reads shows, screens and seat pricing from the scheduling
// side's tables.  It implements catalog.Catalog and never writes: shows
// and seats are created by the scheduling service, not by the booking
// core.
type CatalogRepo struct {
    db *sql.DB
}

// NewCatalogRepo returns a CatalogRepo bound to the provided database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// GetShow loads one show joined with its screen's seating capacity.  The
// status string is validated at this boundary; a row with an unknown
// status is surfaced as ErrBadRow rather than leaking into the core.
func (r *CatalogRepo) GetShow(ctx context.Context, showID uint64) (model.Show, error) {
    const q = `SELECT s.id, s.screen_id, sc.seating_capacity, s.starts_at, s.ends_at, s.status
               FROM shows s
               JOIN screens sc ON sc.id = s.screen_id
               WHERE s.id = ?`
    var (
        sh     model.Show
        status string
    )
    err := r.db.QueryRowContext(ctx, q, showID).Scan(&sh.ID, &sh.ScreenID, &sh.SeatingCapacity, &sh.StartsAt, &sh.EndsAt, &status)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Show{}, catalog.ErrShowNotFound
    }
    if err != nil {
        return model.Show{}, err
    }
    sh.Status = model.ShowStatus(status)
    if !sh.Status.Valid() {
        return model.Show{}, fmt.Errorf("%w: show %d status %q", ErrBadRow, showID, status)
    }
    return sh, nil
}

// GetSeatSlots returns every seat of the show with its price in cents.
func (r *CatalogRepo) GetSeatSlots(ctx context.Context, showID uint64) ([]catalog.SeatInfo, error) {
    const q = `SELECT seat_id, price_cents FROM show_seats WHERE show_id = ? ORDER BY seat_id`
    rows, err := r.db.QueryContext(ctx, q, showID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var seats []catalog.SeatInfo
    for rows.Next() {
        var s catalog.SeatInfo
        if err := rows.Scan(&s.SeatID, &s.PriceCents); err != nil {
            return nil, err
        }
        seats = append(seats, s)
    }
    return seats, rows.Err()
}

// ListBookableShows returns ids of shows whose seats the ledger should
// manage.  Ongoing shows are included so a restart mid-show still
// recovers their booked seats.
func (r *CatalogRepo) ListBookableShows(ctx context.Context) ([]uint64, error) {
    const q = `SELECT id FROM shows WHERE status IN ('SCHEDULED', 'ONGOING') ORDER BY id`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}
