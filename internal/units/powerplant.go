package units

import (
	"fmt"
	"math"
	"time"

	"github.com/gridsim/marketsim/internal/forecast"
)

// technologies maps supported plant technologies to their CO2 emission
// factor (t/MWh fuel). Unknown keys are a fatal configuration error.
var technologies = map[string]float64{
	"hard_coal": 0.34,
	"lignite":   0.41,
	"gas":       0.20,
	"oil":       0.28,
	"nuclear":   0,
	"wind":      0,
	"solar":     0,
}

// PlantConfig are the construction parameters of a power plant.
type PlantConfig struct {
	ID         string
	Technology string
	MaxPower   float64 // MW
	MinPower   float64
	Efficiency float64 // electrical efficiency in (0, 1]
	VariableOM float64 // additional variable cost per MWh
	RampUp     float64 // MW per hour; 0 = unconstrained
	RampDown   float64
}

// PowerPlant is a dispatchable generation unit. Marginal cost is derived
// from fuel and CO2 forecasts; available power is bounded by ramp limits
// against the last dispatched output.
type PowerPlant struct {
	cfg        PlantConfig
	co2Factor  float64
	forecaster *forecast.Provider

	dispatched map[int64]float64
	lastOutput float64
}

// NewPowerPlant validates the plant configuration and binds it to the
// forecast provider. An unrecognized technology key is fatal at setup time.
func NewPowerPlant(cfg PlantConfig, fc *forecast.Provider) (*PowerPlant, error) {
	factor, ok := technologies[cfg.Technology]
	if !ok {
		return nil, fmt.Errorf("units: plant %s: unknown technology %q", cfg.ID, cfg.Technology)
	}
	if cfg.MaxPower <= 0 {
		return nil, fmt.Errorf("units: plant %s: max power must be positive", cfg.ID)
	}
	if cfg.MinPower < 0 || cfg.MinPower > cfg.MaxPower {
		return nil, fmt.Errorf("units: plant %s: min power %g out of [0, %g]", cfg.ID, cfg.MinPower, cfg.MaxPower)
	}
	if cfg.Efficiency <= 0 || cfg.Efficiency > 1 {
		return nil, fmt.Errorf("units: plant %s: efficiency %g out of (0, 1]", cfg.ID, cfg.Efficiency)
	}
	return &PowerPlant{
		cfg:        cfg,
		co2Factor:  factor,
		forecaster: fc,
		dispatched: make(map[int64]float64),
	}, nil
}

func (p *PowerPlant) ID() string         { return p.cfg.ID }
func (p *PowerPlant) Technology() string { return p.cfg.Technology }

// MarginalCost is fuel cost plus emission cost per delivered MWh, plus
// variable O&M.
func (p *PowerPlant) MarginalCost(at time.Time) float64 {
	fuel := p.forecaster.At(forecast.SeriesFuelPrice, at)
	co2 := p.forecaster.At(forecast.SeriesCO2Price, at)
	return fuel/p.cfg.Efficiency + co2*p.co2Factor/p.cfg.Efficiency + p.cfg.VariableOM
}

// AvailablePower is the installed capacity scaled by the availability
// forecast and clipped by the ramp-up limit from the last dispatch.
func (p *PowerPlant) AvailablePower(at time.Time) float64 {
	availability := p.forecaster.At(forecast.SeriesAvailability, at)
	if availability <= 0 || availability > 1 {
		availability = 1
	}
	power := p.cfg.MaxPower * availability
	if p.cfg.RampUp > 0 {
		power = math.Min(power, p.lastOutput+p.cfg.RampUp)
	}
	return power
}

// Dispatch records the realized output for the hour, updating ramp state.
// A cleared volume below the stable minimum shuts the unit down, and a
// running unit cannot back down faster than its ramp-down limit.
func (p *PowerPlant) Dispatch(at time.Time, volume float64) {
	if volume < p.cfg.MinPower {
		volume = 0
	}
	if p.cfg.RampDown > 0 && p.lastOutput > 0 {
		volume = math.Max(volume, p.lastOutput-p.cfg.RampDown)
	}
	p.dispatched[at.Unix()] = volume
	p.lastOutput = volume
}

// Dispatched returns the recorded output for the hour at the given instant.
func (p *PowerPlant) Dispatched(at time.Time) float64 {
	return p.dispatched[at.Unix()]
}
