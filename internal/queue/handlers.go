package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/booking"
)

// StatusApplier stores back-office booking states.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, upd booking.StatusUpdate) (bool, error)
}

// Enricher fills in recall titles after the fact.
type Enricher interface {
	Enrich(ctx context.Context, vehicleKey string, campaigns []string) error
}

// BookingStatusHandler applies booking.status events.
func BookingStatusHandler(a StatusApplier) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev BookingStatusEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return apperr.Invalid("unmarshal booking status: %v", err)
		}
		_, err := a.ApplyStatus(ctx, booking.StatusUpdate{BookingID: ev.BookingID, State: ev.State})
		return err
	}
}

// RecallDiscoveredHandler enriches recall.discovered events.
func RecallDiscoveredHandler(e Enricher) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev RecallsDiscoveredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return apperr.Invalid("unmarshal recall event: %v", err)
		}
		if ev.VehicleID == "" || len(ev.Campaigns) == 0 {
			return apperr.Invalid("recall event needs vehicle_id and campaigns")
		}
		if err := e.Enrich(ctx, ev.VehicleID, ev.Campaigns); err != nil {
			return fmt.Errorf("enrich %s: %w", ev.VehicleID, err)
		}
		return nil
	}
}
