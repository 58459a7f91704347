// Package validate normalizes and validates submitted bid batches against a
// market's tick sizes, bounds and shape rules. Validation is atomic per
// submission: a single failing order discards the whole batch.
package validate

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gridsim/marketsim/internal/domain"
)

// Check names identify the failed validation rule in rejection notices.
const (
	CheckBidType    = "bid_type"
	CheckPriceTick  = "price_tick"
	CheckVolumeTick = "volume_tick"
	CheckMinPrice   = "min_bid"
	CheckMaxPrice   = "max_bid"
	CheckMaxVolume  = "max_volume"
	CheckField      = "missing_field"
	CheckProduct    = "product_window"
	CheckLink       = "linked_parent"
)

// tickTolerance is the relative slack allowed when deciding whether a value
// is an integral multiple of a tick.
const tickTolerance = 1e-6

// RejectionError reports which order of a batch failed which check.
type RejectionError struct {
	Index  int
	Check  string
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order %d: %s: %s", e.Index, e.Check, e.Detail)
}

// Batch validates and normalizes raw orders from one submission message.
// On success every order is stamped with the submitter identity, a fresh
// order ID and a nil only-hours default, and is returned in arrival order.
// Submitted IDs are never kept: they only serve to bind a linked bid to its
// parent block within the same submission, and are replaced so that no two
// resting orders can share an ID. On failure the batch is discarded and a
// *RejectionError identifies the first violation.
func Batch(raw domain.Orderbook, cfg domain.MarketConfig, submitter domain.AgentID, products []domain.Product) (domain.Orderbook, error) {
	out := make(domain.Orderbook, 0, len(raw))
	blockIDs := make(map[string]string)
	for i, order := range raw {
		normalized, err := one(order, cfg, products)
		if err != nil {
			err.Index = i
			return nil, err
		}
		normalized.Agent = submitter
		submitted := normalized.ID
		normalized.ID = uuid.NewString()
		if normalized.BidType == domain.BidTypeBlock && submitted != "" {
			if _, dup := blockIDs[submitted]; dup {
				return nil, &RejectionError{Index: i, Check: CheckLink, Detail: fmt.Sprintf("duplicate block id %q", submitted)}
			}
			blockIDs[submitted] = normalized.ID
		}
		out = append(out, normalized)
	}
	for i := range out {
		if out[i].BidType != domain.BidTypeLinked {
			continue
		}
		parent, ok := blockIDs[out[i].LinkedTo]
		if !ok {
			return nil, &RejectionError{Index: i, Check: CheckLink, Detail: fmt.Sprintf("parent block %q not in this submission", out[i].LinkedTo)}
		}
		out[i].LinkedTo = parent
	}
	return out, nil
}

func one(order domain.Order, cfg domain.MarketConfig, products []domain.Product) (domain.Order, *RejectionError) {
	if !order.BidType.Valid() {
		return order, &RejectionError{Check: CheckBidType, Detail: fmt.Sprintf("unsupported bid type %q", order.BidType)}
	}

	price, ok := normalizeTick(order.Price, cfg.PriceTick)
	if !ok {
		return order, &RejectionError{Check: CheckPriceTick, Detail: fmt.Sprintf("price %g not a multiple of tick %g", order.Price, cfg.PriceTick)}
	}
	order.Price = price

	minPrice, maxPrice := cfg.PriceBounds()
	if order.Price < minPrice {
		return order, &RejectionError{Check: CheckMinPrice, Detail: fmt.Sprintf("price %g below minimum %g", order.Price, minPrice)}
	}
	if order.Price > maxPrice {
		return order, &RejectionError{Check: CheckMaxPrice, Detail: fmt.Sprintf("price %g above maximum %g", order.Price, maxPrice)}
	}

	maxVolume := cfg.VolumeBound()
	switch order.BidType {
	case domain.BidTypeBlock:
		if len(order.Profile) == 0 {
			return order, &RejectionError{Check: CheckProduct, Detail: "block bid without volume profile"}
		}
		normalized := make(map[int64]float64, len(order.Profile))
		for key, volume := range order.Profile {
			v, ok := normalizeTick(volume, cfg.VolumeTick)
			if !ok {
				return order, &RejectionError{Check: CheckVolumeTick, Detail: fmt.Sprintf("profile volume %g not a multiple of tick %g", volume, cfg.VolumeTick)}
			}
			if math.Abs(v) > maxVolume {
				return order, &RejectionError{Check: CheckMaxVolume, Detail: fmt.Sprintf("profile volume %g exceeds maximum %g", v, maxVolume)}
			}
			normalized[key] = v
		}
		order.Profile = normalized
		if err := blockWindow(order, products); err != nil {
			return order, err
		}
	case domain.BidTypeLinked:
		if order.LinkedTo == "" {
			return order, &RejectionError{Check: CheckLink, Detail: "linked bid without parent block reference"}
		}
		fallthrough
	case domain.BidTypeSimple:
		volume, ok := normalizeTick(order.Volume, cfg.VolumeTick)
		if !ok {
			return order, &RejectionError{Check: CheckVolumeTick, Detail: fmt.Sprintf("volume %g not a multiple of tick %g", order.Volume, cfg.VolumeTick)}
		}
		order.Volume = volume
		if math.Abs(order.Volume) > maxVolume {
			return order, &RejectionError{Check: CheckMaxVolume, Detail: fmt.Sprintf("volume %g exceeds maximum %g", order.Volume, maxVolume)}
		}
		if !onProduct(order, products) {
			return order, &RejectionError{Check: CheckProduct, Detail: fmt.Sprintf("window [%s..%s] matches no eligible product", order.Start, order.End)}
		}
	}

	for _, field := range cfg.AdditionalFields {
		if order.Extra[field] == "" {
			return order, &RejectionError{Check: CheckField, Detail: fmt.Sprintf("missing field: %s", field)}
		}
	}

	// OnlyHours default: present, nil when unused.
	if len(order.OnlyHours) == 0 {
		order.OnlyHours = nil
	}
	return order, nil
}

// normalizeTick converts a value to tick counts when a tick is configured.
// It fails when the value is not representable as an integer under the tick.
func normalizeTick(value, tick float64) (float64, bool) {
	if tick <= 0 {
		return value, true
	}
	count := value / tick
	rounded := math.Round(count)
	tolerance := tickTolerance * math.Max(1, math.Abs(count))
	if math.Abs(count-rounded) > tolerance {
		return 0, false
	}
	return rounded, true
}

// onProduct reports whether the order window lies exactly on one eligible
// product. The window check is authoritative: a bid for a period that is not
// currently open is rejected rather than parked.
func onProduct(order domain.Order, products []domain.Product) bool {
	for _, p := range products {
		if p.Contains(order.Start, order.End) {
			return true
		}
	}
	return false
}

func blockWindow(order domain.Order, products []domain.Product) *RejectionError {
	eligible := make(map[int64]struct{}, len(products))
	for _, p := range products {
		eligible[p.Key()] = struct{}{}
	}
	for key := range order.Profile {
		if _, ok := eligible[key]; !ok {
			return &RejectionError{Check: CheckProduct, Detail: fmt.Sprintf("profile key %d matches no eligible product", key)}
		}
	}
	return nil
}
