package model

// VehicleRef is the weak link from a user to the vehicle they own.  It is
// either unlinked or linked to an ID; whether a linked vehicle still exists
// is only known after resolving it against storage.
type VehicleRef struct {
    id string
}

// NoVehicle is the unlinked reference.
var NoVehicle = VehicleRef{}

// LinkVehicle returns a reference to the vehicle with the given ID.  An
// empty ID yields NoVehicle.
func LinkVehicle(id string) VehicleRef { return VehicleRef{id: id} }

// Linked reports whether the reference points at a vehicle.
func (r VehicleRef) Linked() bool { return r.id != "" }

// ID returns the referenced vehicle ID and whether the reference is linked.
func (r VehicleRef) ID() (string, bool) { return r.id, r.id != "" }

func (r VehicleRef) String() string {
    if r.id == "" {
        return "<unlinked>"
    }
    return r.id
}
