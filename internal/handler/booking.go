package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/booking"
	"github.com/autoseers/carseer/internal/model"
)

// BookingTracker is the booking state machine.
type BookingTracker interface {
	GetBookingState(ctx context.Context, vehicleKey, partID string) (booking.State, error)
	RequestBooking(ctx context.Context, vehicleKey string, req booking.Request) (model.ScheduledService, error)
	ApplyStatus(ctx context.Context, upd booking.StatusUpdate) (bool, error)
}

// BookingHandler serves repair bookings.
type BookingHandler struct {
	vehicles *VehicleHandler
	tracker  BookingTracker
	log      zerolog.Logger
}

func NewBookingHandler(vehicles *VehicleHandler, tracker BookingTracker, log zerolog.Logger) *BookingHandler {
	return &BookingHandler{vehicles: vehicles, tracker: tracker, log: log}
}

type bookingReq struct {
	PartID      string `json:"part_id"`
	Place       string `json:"place"`
	Email       string `json:"email"`
	ScheduledAt string `json:"scheduled_at"` // RFC 3339
}

type bookingResp struct {
	ID          string    `json:"id"`
	PartID      string    `json:"part_id"`
	Place       string    `json:"place"`
	Email       string    `json:"email"`
	ScheduledAt time.Time `json:"scheduled_at"`
	State       string    `json:"state"`
}

type stateReq struct {
	State string `json:"state"`
}

// Request books a repair for one part.
func (h *BookingHandler) Request(c echo.Context) error {
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return failure(c, http.StatusBadRequest, "scheduled_at must be an RFC 3339 timestamp")
	}
	v, err := h.vehicles.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s, err := h.tracker.RequestBooking(ctx, v.ID, booking.Request{
		PartID:      strings.TrimSpace(req.PartID),
		Place:       req.Place,
		Email:       req.Email,
		ScheduledAt: at,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusCreated, bookingResp{
		ID:          s.ID,
		PartID:      s.PartID,
		Place:       s.Place,
		Email:       s.Email,
		ScheduledAt: s.ScheduledAt,
		State:       s.State,
	})
}

// State reports the booking state of one part.
func (h *BookingHandler) State(c echo.Context) error {
	partID := strings.TrimSpace(c.Param("partId"))
	v, err := h.vehicles.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	st, err := h.tracker.GetBookingState(ctx, v.ID, partID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, echo.Map{"part_id": partID, "state": st})
}

// SetState is the back-office transition endpoint.
func (h *BookingHandler) SetState(c echo.Context) error {
	var req stateReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	id := strings.TrimSpace(c.Param("id"))
	ctx, cancel := dbCtx(c)
	defer cancel()
	changed, err := h.tracker.ApplyStatus(ctx, booking.StatusUpdate{BookingID: id, State: req.State})
	if err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, echo.Map{"booking_id": id, "state": strings.TrimSpace(req.State), "changed": changed})
}
