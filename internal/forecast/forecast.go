// Package forecast provides time-indexed series lookups (fuel prices, demand,
// availability) that bidding strategies read when constructing orders.
package forecast

import (
	"sync"
	"time"
)

// Well-known series names.
const (
	SeriesFuelPrice     = "fuel_price"
	SeriesCO2Price      = "co2_price"
	SeriesDemand        = "demand"
	SeriesAvailability  = "availability"
	SeriesPriceForecast = "price_forecast"
)

// Series is a step function over time: Values[i] holds for
// [Start+i*Step, Start+(i+1)*Step). Lookups outside the range clamp to the
// nearest end.
type Series struct {
	Start  time.Time
	Step   time.Duration
	Values []float64
}

// At returns the series value at the given instant.
func (s Series) At(at time.Time) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	if s.Step <= 0 || !at.After(s.Start) {
		return s.Values[0]
	}
	idx := int(at.Sub(s.Start) / s.Step)
	if idx >= len(s.Values) {
		idx = len(s.Values) - 1
	}
	return s.Values[idx]
}

// Provider resolves named series. Constants act as fallbacks for names
// without a full series. Safe for concurrent reads after setup.
type Provider struct {
	mu        sync.RWMutex
	series    map[string]Series
	constants map[string]float64
}

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{
		series:    make(map[string]Series),
		constants: make(map[string]float64),
	}
}

// SetSeries installs a step series under the given name.
func (p *Provider) SetSeries(name string, s Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[name] = s
}

// SetConstant installs a constant fallback value under the given name.
func (p *Provider) SetConstant(name string, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.constants[name] = v
}

// At resolves name at the given instant: a full series wins over a constant;
// an unknown name yields 0.
func (p *Provider) At(name string, at time.Time) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.series[name]; ok {
		return s.At(at)
	}
	return p.constants[name]
}
