package booking

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// Store persists scheduled services.
type Store interface {
	Latest(ctx context.Context, vehicleID, partID string) (model.ScheduledService, error)
	CreateUnlessActive(ctx context.Context, s model.ScheduledService, closedState string) (model.ScheduledService, error)
	UpdateState(ctx context.Context, id, state, frozenState string) (bool, error)
}

// Parts resolves a part within a vehicle.
type Parts interface {
	GetPart(ctx context.Context, vehicleID, partID string) (model.PartStatus, error)
}

// Publisher notifies the back office of new requests.
type Publisher interface {
	PublishBookingRequested(ctx context.Context, s model.ScheduledService) error
}

// Request is a customer's booking request for one part.
type Request struct {
	PartID      string
	Place       string
	Email       string
	ScheduledAt time.Time
}

// StatusUpdate is a back-office state change.
type StatusUpdate struct {
	BookingID string
	State     string
}

// Tracker implements the booking state machine over a Store.
type Tracker struct {
	store     Store
	parts     Parts
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewTracker returns a Tracker.  publisher may be nil.
func NewTracker(store Store, parts Parts, publisher Publisher, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, parts: parts, publisher: publisher, log: log, now: time.Now}
}

// GetBookingState returns the state of the latest booking for the part, or
// NoBookingRequested when there is none.  Unknown stored strings also read
// as NoBookingRequested.
func (t *Tracker) GetBookingState(ctx context.Context, vehicleKey, partID string) (State, error) {
	s, err := t.store.Latest(ctx, vehicleKey, partID)
	if errors.Is(err, apperr.ErrNotFound) {
		return NoBookingRequested, nil
	}
	if err != nil {
		return NoBookingRequested, apperr.Unavailable("booking store", err)
	}
	st := ParseState(s.State)
	if st == NoBookingRequested && s.State != string(NoBookingRequested) {
		t.log.Debug().Str("booking", s.ID).Str("state", s.State).Msg("unrecognised booking state")
	}
	return st, nil
}

// RequestBooking creates a WAITING_TO_BE_BOOKED booking.  It fails with
// apperr.ErrConflict while the part has a booking that is not cancelled.
func (t *Tracker) RequestBooking(ctx context.Context, vehicleKey string, req Request) (model.ScheduledService, error) {
	if err := t.validate(req); err != nil {
		return model.ScheduledService{}, err
	}
	if _, err := t.parts.GetPart(ctx, vehicleKey, req.PartID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.ScheduledService{}, err
		}
		return model.ScheduledService{}, apperr.Unavailable("booking store", err)
	}
	s, err := t.store.CreateUnlessActive(ctx, model.ScheduledService{
		VehicleID:   vehicleKey,
		PartID:      req.PartID,
		Place:       strings.TrimSpace(req.Place),
		ScheduledAt: req.ScheduledAt.UTC(),
		Email:       strings.TrimSpace(req.Email),
		State:       string(WaitingToBeBooked),
	}, string(Cancelled))
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return model.ScheduledService{}, err
		}
		return model.ScheduledService{}, apperr.Unavailable("booking store", err)
	}
	if t.publisher != nil {
		if err := t.publisher.PublishBookingRequested(ctx, s); err != nil {
			t.log.Warn().Err(err).Str("booking", s.ID).Msg("publish booking.requested failed")
		}
	}
	return s, nil
}

func (t *Tracker) validate(req Request) error {
	if strings.TrimSpace(req.PartID) == "" {
		return apperr.Invalid("part id is required")
	}
	if strings.TrimSpace(req.Place) == "" {
		return apperr.Invalid("place is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return apperr.Invalid("invalid email %q", req.Email)
	}
	if req.ScheduledAt.IsZero() || !req.ScheduledAt.After(t.now()) {
		return apperr.Invalid("scheduled time must be in the future")
	}
	return nil
}

// ApplyStatus stores a back-office state.  The value is kept verbatim so
// newer writers can introduce states this service does not know yet.
// Updates to a cancelled booking are ignored; the returned bool reports
// whether anything changed.
func (t *Tracker) ApplyStatus(ctx context.Context, upd StatusUpdate) (bool, error) {
	state := strings.TrimSpace(upd.State)
	if upd.BookingID == "" || state == "" {
		return false, apperr.Invalid("booking id and state are required")
	}
	if state == string(NoBookingRequested) {
		return false, apperr.Invalid("%s cannot be stored", NoBookingRequested)
	}
	changed, err := t.store.UpdateState(ctx, upd.BookingID, state, string(Cancelled))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, err
		}
		return false, apperr.Unavailable("booking store", err)
	}
	if !changed {
		t.log.Info().Str("booking", upd.BookingID).Str("state", state).Msg("booking state unchanged")
	}
	return changed, nil
}
