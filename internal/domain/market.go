package domain

import (
	"fmt"
	"math"
	"time"
)

// Recurrence is a cron-like rule for market opening instants: occurrences at
// Start, Start+Interval, Start+2*Interval, ... optionally bounded by Until
// (zero time means unbounded). The schedule engine computes occurrences from
// this data.
type Recurrence struct {
	Start    time.Time
	Interval time.Duration
	Until    time.Time
}

// Bounded reports whether the rule has an explicit end bound.
func (r Recurrence) Bounded() bool {
	return !r.Until.IsZero()
}

// MarketView is the read-only state a matching mechanism receives: the market
// configuration and the orders resting in the book at clearing time.
type MarketView interface {
	MarketConfig() MarketConfig
	RestingOrders() Orderbook
}

// Mechanism is a pure matching function plugged into a market. It must
// partition every resting order into accepted or rejected and return one
// clearing record per eligible product.
type Mechanism func(view MarketView, products []Product) (accepted, rejected Orderbook, meta []ClearingRecord, err error)

// EligibilityFunc decides whether a registering agent may participate.
type EligibilityFunc func(agent AgentID) bool

// MarketConfig is the immutable per-market configuration. A zero PriceTick or
// VolumeTick means continuous values; a non-zero tick forces submitted values
// to integral multiples, and prices/volumes are then carried as tick counts.
type MarketConfig struct {
	Name         string
	Opening      Recurrence
	OpenDuration time.Duration
	Products     []ProductTemplate

	PriceTick  float64
	VolumeTick float64
	MinPrice   float64
	MaxPrice   float64
	MaxVolume  float64

	// AdditionalFields must be present and non-empty on every order.
	AdditionalFields []string

	// SupportsGetUnmatched enables the unmatched-orders query.
	SupportsGetUnmatched bool

	// RequireRegistration gates bid submission on prior registration.
	RequireRegistration bool

	Mechanism Mechanism
	Eligible  EligibilityFunc

	// Role address, stamped at setup.
	Addr string
	ID   string

	// SinkAddr is the persistence collaborator's transport address; empty
	// disables result sink messages.
	SinkAddr string
}

// Validate checks the fatal construction invariants. Tick misalignment of
// bounds is a warning, not an error; see TickWarnings.
func (c MarketConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("market config: name is required")
	}
	if c.MaxPrice < c.MinPrice {
		return fmt.Errorf("market %s: max price %g below min price %g", c.Name, c.MaxPrice, c.MinPrice)
	}
	if c.MaxVolume <= 0 {
		return fmt.Errorf("market %s: max volume must be positive, got %g", c.Name, c.MaxVolume)
	}
	if c.OpenDuration <= 0 {
		return fmt.Errorf("market %s: open duration must be positive", c.Name)
	}
	if c.Opening.Interval <= 0 {
		return fmt.Errorf("market %s: opening interval must be positive", c.Name)
	}
	if c.Mechanism == nil {
		return fmt.Errorf("market %s: %w", c.Name, ErrUnknownMechanism)
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("market %s: at least one product template is required", c.Name)
	}
	return nil
}

// TickWarnings returns a message per configured bound that is not an exact
// multiple of its tick. The bound stays enforced at its configured value.
func (c MarketConfig) TickWarnings() []string {
	var warnings []string
	check := func(name string, value, tick float64) {
		if tick <= 0 {
			return
		}
		ratio := value / tick
		if math.Abs(ratio-math.Round(ratio)) > 1e-9 {
			warnings = append(warnings, fmt.Sprintf("%s %g is not a multiple of tick %g", name, value, tick))
		}
	}
	check("min price", c.MinPrice, c.PriceTick)
	check("max price", c.MaxPrice, c.PriceTick)
	check("max volume", c.MaxVolume, c.VolumeTick)
	return warnings
}

// PriceBounds returns the enforced price bounds in the unit orders are
// carried in: raw currency for continuous markets, tick counts otherwise.
func (c MarketConfig) PriceBounds() (min, max float64) {
	if c.PriceTick > 0 {
		return c.MinPrice / c.PriceTick, c.MaxPrice / c.PriceTick
	}
	return c.MinPrice, c.MaxPrice
}

// VolumeBound returns the enforced maximum volume magnitude, tick-adjusted
// like PriceBounds.
func (c MarketConfig) VolumeBound() float64 {
	if c.VolumeTick > 0 {
		return c.MaxVolume / c.VolumeTick
	}
	return c.MaxVolume
}

// ClearingRecord is the per-product clearing metadata emitted downstream.
type ClearingRecord struct {
	Product      Product
	Price        float64
	SupplyVolume float64
	DemandVolume float64
}

// MarketResult is the outcome of one clearing pass: disjoint accepted and
// rejected books covering every order validated during the period, plus one
// clearing record per eligible product.
type MarketResult struct {
	Market    string
	Period    time.Time // opening instant of the cleared period
	Accepted  Orderbook
	Rejected  Orderbook
	Records   []ClearingRecord
	ClearedAt time.Time
}
