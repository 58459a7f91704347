package strategy

import (
	"math"

	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/units"
)

// NaiveSingleBid bids the unit's marginal cost per product, one simple bid
// each.
type NaiveSingleBid struct{}

// Name implements Strategy.
func (NaiveSingleBid) Name() string { return "naive_single_bid" }

// CalculateBids implements Strategy.
func (NaiveSingleBid) CalculateBids(u units.Unit, products []domain.Product) domain.Orderbook {
	var bids domain.Orderbook
	for _, p := range products {
		bids = append(bids, domain.Order{
			Start:     p.Start,
			End:       p.End,
			OnlyHours: p.OnlyHours,
			BidType:   domain.BidTypeSimple,
			Price:     u.MarginalCost(p.Start),
			Volume:    u.AvailablePower(p.Start),
		})
	}
	return removeEmptyBids(bids)
}

// BlockProfile bids one block over all products: a single price at the
// marginal cost of the first product and a per-product volume profile.
type BlockProfile struct {
	// MinAcceptanceRatio is the floor passed on the block bid; zero means
	// all-or-nothing semantics are left to the mechanism.
	MinAcceptanceRatio float64
}

// Name implements Strategy.
func (BlockProfile) Name() string { return "block_profile" }

// CalculateBids implements Strategy.
func (s BlockProfile) CalculateBids(u units.Unit, products []domain.Product) domain.Orderbook {
	if len(products) == 0 {
		return nil
	}
	profile := make(map[int64]float64, len(products))
	for _, p := range products {
		profile[p.Key()] = u.AvailablePower(p.Start)
	}
	order := domain.Order{
		Start:              products[0].Start,
		End:                products[len(products)-1].End,
		OnlyHours:          products[0].OnlyHours,
		BidType:            domain.BidTypeBlock,
		Price:              u.MarginalCost(products[0].Start),
		Profile:            profile,
		MinAcceptanceRatio: s.MinAcceptanceRatio,
	}
	return removeEmptyBids(domain.Orderbook{order})
}

// PosReserve bids the unit's upward headroom at price zero, one simple bid
// per product.
type PosReserve struct{}

// Name implements Strategy.
func (PosReserve) Name() string { return "pos_reserve" }

// CalculateBids implements Strategy.
func (PosReserve) CalculateBids(u units.Unit, products []domain.Product) domain.Orderbook {
	var bids domain.Orderbook
	for _, p := range products {
		bids = append(bids, domain.Order{
			Start:     p.Start,
			End:       p.End,
			OnlyHours: p.OnlyHours,
			BidType:   domain.BidTypeSimple,
			Price:     0,
			Volume:    math.Max(0, u.AvailablePower(p.Start)),
		})
	}
	return removeEmptyBids(bids)
}

// NegReserve bids the unit's downward volume at price zero.
type NegReserve struct{}

// Name implements Strategy.
func (NegReserve) Name() string { return "neg_reserve" }

// CalculateBids implements Strategy.
func (NegReserve) CalculateBids(u units.Unit, products []domain.Product) domain.Orderbook {
	var bids domain.Orderbook
	for _, p := range products {
		bids = append(bids, domain.Order{
			Start:     p.Start,
			End:       p.End,
			OnlyHours: p.OnlyHours,
			BidType:   domain.BidTypeSimple,
			Price:     0,
			Volume:    math.Min(0, u.AvailablePower(p.Start)),
		})
	}
	return removeEmptyBids(bids)
}
