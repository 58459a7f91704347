package domain

import "time"

// Product is one tradable delivery interval within an open period. Products
// never mutate after creation.
type Product struct {
	Start     time.Time
	End       time.Time
	OnlyHours []int // nil unless the product is an hour-restricted block
}

// Key returns the product start as unix seconds, the index used by block bid
// volume profiles and clearing records.
func (p Product) Key() int64 {
	return p.Start.Unix()
}

// Contains reports whether the given order window lies exactly on this
// product.
func (p Product) Contains(start, end time.Time) bool {
	return p.Start.Equal(start) && p.End.Equal(end)
}

// ProductTemplate describes how products are derived from an opening instant:
// Count consecutive slices of Duration each, the first one starting
// FirstDeliveryAfter the opening.
type ProductTemplate struct {
	Duration           time.Duration
	Count              int
	FirstDeliveryAfter time.Duration
	OnlyHours          []int
}

// AvailableProducts derives the eligible products for one opening
// deterministically from the market's templates.
func AvailableProducts(templates []ProductTemplate, opening time.Time) []Product {
	var products []Product
	for _, tpl := range templates {
		start := opening.Add(tpl.FirstDeliveryAfter)
		for i := 0; i < tpl.Count; i++ {
			products = append(products, Product{
				Start:     start,
				End:       start.Add(tpl.Duration),
				OnlyHours: tpl.OnlyHours,
			})
			start = start.Add(tpl.Duration)
		}
	}
	return products
}
