package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// BookingRepo persists scheduled services.  The state column is an open
// string: this layer never interprets it beyond equality checks supplied
// by the caller.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = "id, vehicle_id, part_id, place, scheduled_at, email, state, created_at, updated_at"

func scanBooking(row rowScanner) (model.ScheduledService, error) {
	var s model.ScheduledService
	err := row.Scan(&s.ID, &s.VehicleID, &s.PartID, &s.Place, &s.ScheduledAt, &s.Email, &s.State, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Latest returns the most recent booking for a part.
func (r *BookingRepo) Latest(ctx context.Context, vehicleID, partID string) (model.ScheduledService, error) {
	s, err := scanBooking(r.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM scheduled_services WHERE vehicle_id = ? AND part_id = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		vehicleID, partID))
	return s, notFound(err, "booking")
}

// Get loads a booking by id.
func (r *BookingRepo) Get(ctx context.Context, id string) (model.ScheduledService, error) {
	s, err := scanBooking(r.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM scheduled_services WHERE id = ? LIMIT 1", id))
	return s, notFound(err, "booking")
}

// CreateUnlessActive inserts s unless the part already has a booking whose
// state differs from closedState.  The existing rows are locked for the
// duration of the check so two concurrent requests cannot both succeed.
func (r *BookingRepo) CreateUnlessActive(ctx context.Context, s model.ScheduledService, closedState string) (model.ScheduledService, error) {
	s.ID = uuid.NewString()
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM scheduled_services WHERE vehicle_id = ? AND part_id = ? AND state <> ? LIMIT 1 FOR UPDATE`,
			s.VehicleID, s.PartID, closedState).Scan(&existing)
		switch {
		case err == nil:
			return fmt.Errorf("booking %s is still open: %w", existing, apperr.ErrConflict)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scheduled_services (id, vehicle_id, part_id, place, scheduled_at, email, state)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.VehicleID, s.PartID, s.Place, s.ScheduledAt.UTC(), s.Email, s.State)
		return err
	})
	if err != nil {
		return model.ScheduledService{}, err
	}
	return r.Get(ctx, s.ID)
}

// UpdateState writes state unless the stored state equals frozenState.  It
// reports whether a row was written; with clientFoundRows a same-state write counts.
func (r *BookingRepo) UpdateState(ctx context.Context, id, state, frozenState string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_services SET state = ? WHERE id = ? AND state <> ?`, state, id, frozenState)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}
