// Package booking tracks repair bookings for individual parts.  Creation is
// the only transition this service performs; later states are written by
// the scheduling back office and read back as-is.
package booking

// State is the progress of a part's booking.
type State string

const (
	// NoBookingRequested is the absence of a booking.  It is never stored.
	NoBookingRequested State = "NO_BOOKING_REQUESTED"
	WaitingToBeBooked  State = "WAITING_TO_BE_BOOKED"
	Processing         State = "PROCESSING"
	Booked             State = "BOOKED"
	// Cancelled is terminal.
	Cancelled State = "CANCELLED"
)

var known = map[State]struct{}{
	NoBookingRequested: {},
	WaitingToBeBooked:  {},
	Processing:         {},
	Booked:             {},
	Cancelled:          {},
}

// ParseState maps a stored string onto a State.  Matching is exact; any
// other value, including the empty string, is NoBookingRequested.
func ParseState(s string) State {
	if _, ok := known[State(s)]; ok {
		return State(s)
	}
	return NoBookingRequested
}

// Terminal reports whether no further transitions are accepted.
func (s State) Terminal() bool { return s == Cancelled }

func (s State) String() string { return string(s) }
