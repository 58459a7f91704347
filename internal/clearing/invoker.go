// Package clearing wraps externally supplied matching mechanisms with a
// uniform invocation contract and provides the stock mechanisms (pay-as-clear
// and pay-as-bid). The invoker defensively checks that a mechanism returned a
// total partition of the resting book and one record per eligible product; a
// violation fails the clearing pass rather than propagating inconsistent
// state.
package clearing

import (
	"fmt"

	"github.com/gridsim/marketsim/internal/domain"
)

// Invoke runs the mechanism over the view's resting book and validates the
// result against the invocation contract.
func Invoke(view domain.MarketView, products []domain.Product) (*domain.MarketResult, error) {
	cfg := view.MarketConfig()
	resting := view.RestingOrders()

	accepted, rejected, meta, err := cfg.Mechanism(view, products)
	if err != nil {
		return nil, fmt.Errorf("clearing: mechanism for %s: %w", cfg.Name, err)
	}

	if err := checkCoverage(resting, accepted, rejected); err != nil {
		return nil, fmt.Errorf("clearing: %s: %w", cfg.Name, err)
	}
	if err := checkMeta(meta, products); err != nil {
		return nil, fmt.Errorf("clearing: %s: %w", cfg.Name, err)
	}

	return &domain.MarketResult{
		Market:   cfg.Name,
		Accepted: accepted,
		Rejected: rejected,
		Records:  meta,
	}, nil
}

// checkCoverage verifies that every resting order appears in exactly one of
// accepted/rejected, with no extras and no duplicates.
func checkCoverage(resting, accepted, rejected domain.Orderbook) error {
	want := resting.IDs()
	seen := make(map[string]struct{}, len(want))

	for _, book := range []domain.Orderbook{accepted, rejected} {
		for _, o := range book {
			if _, ok := want[o.ID]; !ok {
				return fmt.Errorf("%w: order %s not in resting book", domain.ErrCoverageViolation, o.ID)
			}
			if _, dup := seen[o.ID]; dup {
				return fmt.Errorf("%w: order %s partitioned twice", domain.ErrCoverageViolation, o.ID)
			}
			seen[o.ID] = struct{}{}
		}
	}
	if len(seen) != len(want) {
		return fmt.Errorf("%w: %d of %d resting orders unaccounted for",
			domain.ErrCoverageViolation, len(want)-len(seen), len(want))
	}
	return nil
}

// checkMeta verifies one clearing record per eligible product, keeping
// downstream indexing total even for products with zero traded volume.
func checkMeta(meta []domain.ClearingRecord, products []domain.Product) error {
	if len(meta) != len(products) {
		return fmt.Errorf("%w: %d records for %d products", domain.ErrCoverageViolation, len(meta), len(products))
	}
	byKey := make(map[int64]struct{}, len(meta))
	for _, rec := range meta {
		byKey[rec.Product.Key()] = struct{}{}
	}
	for _, p := range products {
		if _, ok := byKey[p.Key()]; !ok {
			return fmt.Errorf("%w: no record for product %s", domain.ErrCoverageViolation, p.Start)
		}
	}
	return nil
}
