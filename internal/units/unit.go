// Package units models the physical assets behind market participants:
// generation plants offering supply and demand units bidding consumption.
// Strategies consume the Unit surface; the optimization detail of the real
// assets stays out of scope.
package units

import "time"

// Unit is what a bidding strategy needs to know about a physical asset.
type Unit interface {
	ID() string
	Technology() string

	// AvailablePower returns the signed volume the unit can serve for the
	// hour at the given instant: positive supply, negative demand.
	AvailablePower(at time.Time) float64

	// MarginalCost returns the cost of the next unit of energy at the given
	// instant.
	MarginalCost(at time.Time) float64

	// Dispatch records the accepted volume for the hour at the given
	// instant, feeding ramp constraints for subsequent periods.
	Dispatch(at time.Time, volume float64)
}
