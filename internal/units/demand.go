package units

import (
	"fmt"
	"time"

	"github.com/gridsim/marketsim/internal/forecast"
)

// DemandConfig are the construction parameters of a demand unit.
type DemandConfig struct {
	ID          string
	PeakDemand  float64 // MW, positive
	Willingness float64 // maximum price the load pays per MWh
}

// DemandUnit is an inflexible load. Its available power is the negative
// demand forecast and its marginal cost is the willingness to pay.
type DemandUnit struct {
	cfg        DemandConfig
	forecaster *forecast.Provider
	dispatched map[int64]float64
}

// NewDemandUnit validates the demand configuration.
func NewDemandUnit(cfg DemandConfig, fc *forecast.Provider) (*DemandUnit, error) {
	if cfg.PeakDemand <= 0 {
		return nil, fmt.Errorf("units: demand %s: peak demand must be positive", cfg.ID)
	}
	return &DemandUnit{cfg: cfg, forecaster: fc, dispatched: make(map[int64]float64)}, nil
}

func (d *DemandUnit) ID() string         { return d.cfg.ID }
func (d *DemandUnit) Technology() string { return "demand" }

// AvailablePower is the negative forecast demand, clipped at peak.
func (d *DemandUnit) AvailablePower(at time.Time) float64 {
	demand := d.forecaster.At(forecast.SeriesDemand, at)
	if demand <= 0 || demand > d.cfg.PeakDemand {
		demand = d.cfg.PeakDemand
	}
	return -demand
}

// MarginalCost is the willingness to pay.
func (d *DemandUnit) MarginalCost(time.Time) float64 {
	return d.cfg.Willingness
}

// Dispatch records the cleared consumption for the hour.
func (d *DemandUnit) Dispatch(at time.Time, volume float64) {
	d.dispatched[at.Unix()] = volume
}

// Dispatched returns the recorded consumption for the hour.
func (d *DemandUnit) Dispatched(at time.Time) float64 {
	return d.dispatched[at.Unix()]
}
