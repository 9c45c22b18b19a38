// Package health derives a vehicle's health percentage from its part
// statuses.
package health

import (
	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// Score returns floor(100*good/total).  Rounding is always down: a vehicle
// is never reported healthier than its parts justify.  A vehicle with no
// recorded parts scores 0, as do inconsistent counts (see Validate).
func Score(good, total int) int {
	if Validate(good, total) != nil || total == 0 {
		return 0
	}
	return 100 * good / total
}

// Validate checks the preconditions of Score.  The returned error wraps
// apperr.ErrDataIntegrity and is meant to be logged, not propagated.
func Validate(good, total int) error {
	switch {
	case total < 0:
		return apperr.Integrity("negative part total %d", total)
	case good < 0:
		return apperr.Integrity("negative good part count %d", good)
	case good > total:
		return apperr.Integrity("good part count %d exceeds total %d", good, total)
	}
	return nil
}

// Counts tallies part statuses for one vehicle.  Unknown counts parts whose
// stored status is outside the closed set; they count towards the total
// but never as good.
type Counts struct {
	Good    int
	Medium  int
	Bad     int
	Unknown int
}

// Tally counts the statuses in parts.
func Tally(parts []model.PartStatus) Counts {
	var c Counts
	for _, p := range parts {
		switch p.Status {
		case model.ConditionGood:
			c.Good++
		case model.ConditionMedium:
			c.Medium++
		case model.ConditionBad:
			c.Bad++
		default:
			c.Unknown++
		}
	}
	return c
}

// Total is the number of parts counted.
func (c Counts) Total() int { return c.Good + c.Medium + c.Bad + c.Unknown }

// Alerts is the number of parts that need attention.
func (c Counts) Alerts() int { return c.Medium + c.Bad }

// Score applies Score to the tally.
func (c Counts) Score() int { return Score(c.Good, c.Total()) }
