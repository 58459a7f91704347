package domain

import (
	"fmt"
	"sort"
	"time"
)

// BidType discriminates the order payload shape.
type BidType string

const (
	// BidTypeSimple is a single-product order with one scalar volume.
	BidTypeSimple BidType = "SB"
	// BidTypeBlock spans several products with one price and a per-product
	// volume profile, accepted or rejected as a unit.
	BidTypeBlock BidType = "BB"
	// BidTypeLinked is a simple order conditioned on acceptance of a
	// referenced block bid.
	BidTypeLinked BidType = "LB"
)

// Valid reports whether t is one of the supported bid type tags.
func (t BidType) Valid() bool {
	switch t {
	case BidTypeSimple, BidTypeBlock, BidTypeLinked:
		return true
	}
	return false
}

// AgentID identifies a market participant by transport address and logical
// agent id. It is attached by the market role on receipt, never supplied by
// the submitter.
type AgentID struct {
	Addr string
	ID   string
}

// String renders the id as "addr/id" for logs and cache keys.
func (a AgentID) String() string {
	return a.Addr + "/" + a.ID
}

// Zero reports whether the id is unset.
func (a AgentID) Zero() bool {
	return a.Addr == "" && a.ID == ""
}

// Order is a validated bid resting in a market's order book. The common
// header applies to every bid type; Profile, MinAcceptanceRatio and LinkedTo
// are only meaningful for the tag indicated by BidType.
//
// In a market with a configured price or volume tick, Price and Volume carry
// integral tick counts rather than raw currency/energy units; the matching
// mechanism sees integers in that regime.
type Order struct {
	ID        string
	Start     time.Time
	End       time.Time
	OnlyHours []int // restricts a multi-hour order to these hours; nil if unused
	BidType   BidType
	Price     float64
	Volume    float64 // SB/LB scalar; positive supply, negative demand

	// Block bids only. MinAcceptanceRatio is advisory to mechanisms that
	// support partial block acceptance; the stock mechanisms clear blocks
	// all-or-nothing and ignore it.
	Profile            map[int64]float64 // product start (unix seconds) -> volume
	MinAcceptanceRatio float64

	// Linked bids only: the parent block bid's order ID.
	LinkedTo string

	Agent AgentID           // stamped by the role on receipt
	Extra map[string]string // market-specific mandatory fields

	// Written by the clearing pass, never by the submitter.
	AcceptedVolume  float64
	AcceptedPrice   float64
	AcceptedProfile map[int64]float64 // block bids: per-product accepted volume
}

// ProfileKeys returns the product start keys of a block bid's volume profile
// in ascending order.
func (o Order) ProfileKeys() []int64 {
	keys := make([]int64, 0, len(o.Profile))
	for k := range o.Profile {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Orderbook is an ordered sequence of orders. Insertion order is submission
// order and is preserved through validation.
type Orderbook []Order

// ByAgent groups the book by submitter, preserving each agent's first
// appearance order. Used for clearing notice fan-out.
func (ob Orderbook) ByAgent() ([]AgentID, map[AgentID]Orderbook) {
	var agents []AgentID
	grouped := make(map[AgentID]Orderbook)
	for _, o := range ob {
		if _, ok := grouped[o.Agent]; !ok {
			agents = append(agents, o.Agent)
		}
		grouped[o.Agent] = append(grouped[o.Agent], o)
	}
	return agents, grouped
}

// IDs returns the set of order IDs in the book.
func (ob Orderbook) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(ob))
	for _, o := range ob {
		ids[o.ID] = struct{}{}
	}
	return ids
}

// Filter returns the orders matching the given product window. A zero filter
// field matches everything.
func (ob Orderbook) Filter(f ProductFilter) Orderbook {
	var out Orderbook
	for _, o := range ob {
		if !f.Start.IsZero() && !o.Start.Equal(f.Start) {
			continue
		}
		if !f.End.IsZero() && !o.End.Equal(f.End) {
			continue
		}
		if f.OnlyHours != nil && !equalHours(o.OnlyHours, f.OnlyHours) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ProductFilter selects orders by their (start, end, only-hours) key.
type ProductFilter struct {
	Start     time.Time
	End       time.Time
	OnlyHours []int
}

func equalHours(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Summary is a short human-readable form for logs.
func (o Order) Summary() string {
	return fmt.Sprintf("%s %s@%g x %g [%s..%s]",
		o.BidType, o.ID, o.Price, o.Volume,
		o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339))
}
