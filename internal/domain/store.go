package domain

import (
	"context"
	"time"
)

// MarketResultStore persists per-product clearing records.
type MarketResultStore interface {
	InsertRecords(ctx context.Context, market string, period time.Time, records []ClearingRecord) error
	ListByMarket(ctx context.Context, market string, limit int) ([]ClearingRecord, error)
}

// OrderbookStore persists the partitioned orderbook of a cleared period.
type OrderbookStore interface {
	InsertOrders(ctx context.Context, market string, period time.Time, accepted, rejected Orderbook) error
	ListByPeriod(ctx context.Context, market string, period time.Time) (accepted, rejected Orderbook, err error)
}

// ClearingPriceCache holds the latest clearing price per market product for
// fast reads by the status API and forecast consumers.
type ClearingPriceCache interface {
	SetPrice(ctx context.Context, market string, productStart time.Time, price float64, clearedAt time.Time) error
	GetPrice(ctx context.Context, market string, productStart time.Time) (float64, time.Time, error)
}

// ResultBus publishes clearing events for live consumers (ws hub, external
// tooling). Fire-and-forget from the market's perspective.
type ResultBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads a finished object to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, contentType string, data []byte) error
}

// Archiver dumps a simulation run's results to blob storage.
type Archiver interface {
	ArchiveRun(ctx context.Context, runID string, results []MarketResult) error
}

// ResultObserver is notified after every completed clearing pass. Observers
// run on the simulation thread and must not block.
type ResultObserver interface {
	OnClearing(result MarketResult)
}
