package model

import (
    "strings"
    "time"
)

// Vehicle is the record stored in the `vehicles` table.  It is created on
// the first report upload or manual entry and its descriptive fields are
// overwritten by later uploads.
//
// Fields:
//  ID             – vehicle key (UUID string).
//  Make           – manufacturer, e.g. Honda.
//  Model          – model name, e.g. Civic.
//  Year           – model year.
//  Mileage        – odometer reading; 0 when unknown.
//  HealthScore    – derived score in [0,100].
//  RecallCount    – mirrors the size of the persisted recall set.
//  EstimatedPrice – generated price estimate; empty when unknown.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Vehicle struct {
    ID             string    // vehicles.id
    Make           string    // vehicles.make
    Model          string    // vehicles.model
    Year           int       // vehicles.year
    Mileage        int       // vehicles.mileage
    HealthScore    int       // vehicles.health_score
    RecallCount    int       // vehicles.recall_count
    EstimatedPrice string    // vehicles.estimated_price
    CreatedAt      time.Time // vehicles.created_at
    UpdatedAt      time.Time // vehicles.updated_at
}

// Complete reports whether make, model and year are all known, which is
// required before recall lookups and price estimates.
func (v Vehicle) Complete() bool {
    return strings.TrimSpace(v.Make) != "" && strings.TrimSpace(v.Model) != "" && v.Year > 0
}

// PartCondition is the closed set of inspection outcomes for a part.
type PartCondition string

const (
    ConditionGood   PartCondition = "Good"
    ConditionMedium PartCondition = "Medium"
    ConditionBad    PartCondition = "Bad"
)

// ParseCondition maps report text onto a PartCondition.  Matching is case
// insensitive; unknown values return false.
func ParseCondition(s string) (PartCondition, bool) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "good":
        return ConditionGood, true
    case "medium":
        return ConditionMedium, true
    case "bad":
        return ConditionBad, true
    }
    return "", false
}

// NeedsAttention reports whether the condition raises an alert.
func (c PartCondition) NeedsAttention() bool {
    return c == ConditionMedium || c == ConditionBad
}

// PartStatus is a row of the `parts` table, owned by a vehicle.
//
// Fields:
//  ID          – primary key (UUID string).
//  VehicleID   – owning vehicle.
//  Name        – part name as reported, e.g. "Front brake pads"; unique
//                per vehicle under PartKey.
//  Category    – grouping such as interior or exterior.
//  Status      – Good, Medium or Bad.
//  Description – generated summary, written once when first non-empty.
//  UpdatedAt   – last report listing the part, or last repair.
type PartStatus struct {
    ID          string        // parts.id
    VehicleID   string        // parts.vehicle_id
    Name        string        // parts.name
    Category    string        // parts.category
    Status      PartCondition // parts.status
    Description string        // parts.description
    UpdatedAt   time.Time     // parts.updated_at
}

// PartKey is the identity of a part name within a vehicle.  It ignores
// case and surrounding space, as the parts.name collation does.
func PartKey(name string) string {
    return strings.ToLower(strings.TrimSpace(name))
}

// DistinctParts keeps the first part of each PartKey, preserving order.
func DistinctParts(parts []PartStatus) []PartStatus {
    seen := make(map[string]bool, len(parts))
    out := make([]PartStatus, 0, len(parts))
    for _, p := range parts {
        k := PartKey(p.Name)
        if seen[k] {
            continue
        }
        seen[k] = true
        out = append(out, p)
    }
    return out
}

// DisplayDate formats UpdatedAt as MM/dd/yyyy.
func (p PartStatus) DisplayDate() string {
    if p.UpdatedAt.IsZero() {
        return ""
    }
    return p.UpdatedAt.Format("01/02/2006")
}
