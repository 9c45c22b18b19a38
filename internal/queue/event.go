// Package queue defines message payloads exchanged over the message broker
// and the consumers that act on them.
package queue

// Queue names.  All queues are durable and bound to the default exchange.
const (
	BookingRequestedQueue = "booking.requested"
	BookingStatusQueue    = "booking.status"
	RecallDiscoveredQueue = "recall.discovered"
)

// BookingRequestedEvent is published when a customer requests a booking.
// The scheduling back office consumes it and answers on booking.status.
type BookingRequestedEvent struct {
	BookingID   string `json:"booking_id"`
	VehicleID   string `json:"vehicle_id"`
	PartID      string `json:"part_id"`
	Place       string `json:"place"`
	ScheduledAt string `json:"scheduled_at"`
	Email       string `json:"email"`
	RequestedAt string `json:"requested_at"`
}

// BookingStatusEvent is a back-office state change.  State is an open
// string and stored verbatim.
type BookingStatusEvent struct {
	BookingID string `json:"booking_id"`
	State     string `json:"state"`
}

// RecallsDiscoveredEvent lists campaigns stored without a generated title.
type RecallsDiscoveredEvent struct {
	VehicleID string   `json:"vehicle_id"`
	Campaigns []string `json:"campaigns"`
}
