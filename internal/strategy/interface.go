// Package strategy implements the bidding strategies market participants use
// to turn a unit's physical state and forecasts into orders.
package strategy

import (
	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/units"
)

// Strategy builds the orderbook a participant submits for one opening.
type Strategy interface {
	// Name identifies the strategy in config and logs.
	Name() string

	// CalculateBids derives orders for the eligible products from the unit's
	// marginal cost and available power. Empty-volume bids are dropped.
	CalculateBids(u units.Unit, products []domain.Product) domain.Orderbook
}

// removeEmptyBids drops zero-volume orders; a block bid survives if any
// profile entry is non-zero.
func removeEmptyBids(orders domain.Orderbook) domain.Orderbook {
	var out domain.Orderbook
	for _, o := range orders {
		if o.BidType == domain.BidTypeBlock {
			keep := false
			for _, v := range o.Profile {
				if v != 0 {
					keep = true
					break
				}
			}
			if keep {
				out = append(out, o)
			}
			continue
		}
		if o.Volume != 0 {
			out = append(out, o)
		}
	}
	return out
}
