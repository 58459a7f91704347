package clearing

import (
	"math"
	"sort"

	"github.com/gridsim/marketsim/internal/domain"
)

// PayAsClear is a uniform-price merit-order mechanism: per product, supply
// offers are crossed against demand offers and every match settles at the
// marginal supply price. Block bids are evaluated against the resulting
// per-product prices and accepted atomically; linked bids additionally
// require their parent block to be accepted.
func PayAsClear(view domain.MarketView, products []domain.Product) (domain.Orderbook, domain.Orderbook, []domain.ClearingRecord, error) {
	return clear(view, products, false)
}

// PayAsBid crosses the same merit order but settles every accepted order at
// its own bid price; the per-product record carries the volume-weighted
// average accepted supply price.
func PayAsBid(view domain.MarketView, products []domain.Product) (domain.Orderbook, domain.Orderbook, []domain.ClearingRecord, error) {
	return clear(view, products, true)
}

// fill tracks one order's matched volume during a clearing pass.
type fill struct {
	volume float64
	price  float64
	ok     bool
}

func clear(view domain.MarketView, products []domain.Product, payAsBid bool) (domain.Orderbook, domain.Orderbook, []domain.ClearingRecord, error) {
	book := append(domain.Orderbook(nil), view.RestingOrders()...)
	fills := make([]fill, len(book))
	prices := make(map[int64]float64, len(products))
	weighted := make(map[int64]float64, len(products)) // pay-as-bid: sum(price*qty) of accepted supply
	supplyVol := make(map[int64]float64, len(products))
	demandVol := make(map[int64]float64, len(products))

	// Phase 1: cross simple bids per product.
	for _, p := range products {
		key := p.Key()
		var supply, demand []int
		for i, o := range book {
			if o.BidType != domain.BidTypeSimple || !p.Contains(o.Start, o.End) {
				continue
			}
			switch {
			case o.Volume > 0:
				supply = append(supply, i)
			case o.Volume < 0:
				demand = append(demand, i)
			}
		}
		sort.SliceStable(supply, func(a, b int) bool { return book[supply[a]].Price < book[supply[b]].Price })
		sort.SliceStable(demand, func(a, b int) bool { return book[demand[a]].Price > book[demand[b]].Price })

		si, di := 0, 0
		var sRem, dRem float64
		if len(supply) > 0 {
			sRem = book[supply[0]].Volume
		}
		if len(demand) > 0 {
			dRem = -book[demand[0]].Volume
		}
		for si < len(supply) && di < len(demand) {
			so, do := book[supply[si]], book[demand[di]]
			if so.Price > do.Price {
				break
			}
			qty := math.Min(sRem, dRem)
			fills[supply[si]].volume += qty
			fills[demand[di]].volume -= qty
			prices[key] = so.Price
			supplyVol[key] += qty
			demandVol[key] += qty
			weighted[key] += so.Price * qty

			sRem -= qty
			dRem -= qty
			if sRem == 0 {
				si++
				if si < len(supply) {
					sRem = book[supply[si]].Volume
				}
			}
			if dRem == 0 {
				di++
				if di < len(demand) {
					dRem = -book[demand[di]].Volume
				}
			}
		}
	}

	// Phase 2: block bids, atomic against the phase-1 prices.
	for i, o := range book {
		if o.BidType != domain.BidTypeBlock {
			continue
		}
		avg, total := profileAverage(o, prices)
		accept := false
		if total > 0 {
			accept = o.Price <= avg // supply block earns at least its ask
		} else if total < 0 {
			accept = o.Price >= avg // demand block pays at most its bid
		}
		if !accept {
			continue
		}
		fills[i].ok = true
		fills[i].price = avg
		if payAsBid {
			fills[i].price = o.Price
		}
		for _, key := range o.ProfileKeys() {
			if v := o.Profile[key]; v > 0 {
				supplyVol[key] += v
			} else {
				demandVol[key] -= v
			}
		}
	}

	// Phase 3: linked bids, gated on their parent block.
	parents := make(map[string]bool)
	for i, o := range book {
		if o.BidType == domain.BidTypeBlock {
			parents[o.ID] = fills[i].ok
		}
	}
	for i, o := range book {
		if o.BidType != domain.BidTypeLinked || !parents[o.LinkedTo] {
			continue
		}
		key := o.Start.Unix()
		price := prices[key]
		accept := (o.Volume > 0 && o.Price <= price) || (o.Volume < 0 && o.Price >= price)
		if !accept {
			continue
		}
		fills[i].volume = o.Volume
		if o.Volume > 0 {
			supplyVol[key] += o.Volume
			weighted[key] += o.Price * o.Volume
		} else {
			demandVol[key] -= o.Volume
		}
	}

	// Partition with accepted-volume/price attached.
	var accepted, rejected domain.Orderbook
	for i, o := range book {
		f := fills[i]
		switch {
		case o.BidType == domain.BidTypeBlock && f.ok:
			o.AcceptedPrice = f.price
			o.AcceptedProfile = make(map[int64]float64, len(o.Profile))
			for key, v := range o.Profile {
				o.AcceptedProfile[key] = v
			}
			accepted = append(accepted, o)
		case o.BidType != domain.BidTypeBlock && f.volume != 0:
			o.AcceptedVolume = f.volume
			if payAsBid {
				o.AcceptedPrice = o.Price
			} else {
				o.AcceptedPrice = prices[o.Start.Unix()]
			}
			accepted = append(accepted, o)
		default:
			rejected = append(rejected, o)
		}
	}

	// One record per product, present even with zero traded volume.
	records := make([]domain.ClearingRecord, 0, len(products))
	for _, p := range products {
		key := p.Key()
		price := prices[key]
		if payAsBid && supplyVol[key] > 0 {
			price = weighted[key] / supplyVol[key]
		}
		records = append(records, domain.ClearingRecord{
			Product:      p,
			Price:        price,
			SupplyVolume: supplyVol[key],
			DemandVolume: demandVol[key],
		})
	}
	return accepted, rejected, records, nil
}

// profileAverage returns the volume-weighted average phase-1 price over a
// block's products and the profile's total signed volume. Keys are walked in
// sorted order so the float accumulation is identical across runs.
func profileAverage(o domain.Order, prices map[int64]float64) (avg, total float64) {
	var weighted, magnitude float64
	for _, key := range o.ProfileKeys() {
		v := o.Profile[key]
		weighted += prices[key] * math.Abs(v)
		magnitude += math.Abs(v)
		total += v
	}
	if magnitude == 0 {
		return 0, 0
	}
	return weighted / magnitude, total
}
