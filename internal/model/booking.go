package model

import "time"

// ScheduledService records a repair booking for one part.  It is created
// on a booking request; afterwards only State changes.  State is stored as
// an open string so that back-office writers may introduce new values.
//
// Fields:
//  ID          – primary key (UUID string).
//  VehicleID   – owning vehicle.
//  PartID      – part the booking is for.
//  Place       – requested service location.
//  ScheduledAt – requested appointment time (UTC).
//  Email       – contact email.
//  State       – raw stored booking state.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last state change.
type ScheduledService struct {
    ID          string    // scheduled_services.id
    VehicleID   string    // scheduled_services.vehicle_id
    PartID      string    // scheduled_services.part_id
    Place       string    // scheduled_services.place
    ScheduledAt time.Time // scheduled_services.scheduled_at
    Email       string    // scheduled_services.email
    State       string    // scheduled_services.state
    CreatedAt   time.Time // scheduled_services.created_at
    UpdatedAt   time.Time // scheduled_services.updated_at
}
