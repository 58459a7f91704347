package app

import (
	"sync"

	"github.com/gridsim/marketsim/internal/domain"
)

// resultCollector accumulates every clearing result of a run so it can be
// archived and summarised after the clock stops.
type resultCollector struct {
	mu      sync.Mutex
	results []domain.MarketResult
}

func newResultCollector() *resultCollector {
	return &resultCollector{}
}

func (c *resultCollector) OnClearing(result domain.MarketResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of the collected results.
func (c *resultCollector) Results() []domain.MarketResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.MarketResult(nil), c.results...)
}

var _ domain.ResultObserver = (*resultCollector)(nil)
