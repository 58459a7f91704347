package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gridsim/marketsim/internal/domain"
)

// ResultChannel is the Pub/Sub channel prefix for clearing events. The full
// channel name is "clearing.{market}".
const ResultChannel = "clearing."

// Recorder implements domain.ResultObserver. It caches per-product clearing
// prices and publishes the full result as JSON on the bus. Observers run on
// the simulation thread, so the Redis writes happen on a worker goroutine and
// results are dropped with a warning when the worker falls behind.
type Recorder struct {
	prices domain.ClearingPriceCache
	bus    domain.ResultBus
	logger *slog.Logger

	queue chan domain.MarketResult
	once  sync.Once
	done  chan struct{}
}

// NewRecorder creates a Recorder and starts its worker. Either prices or bus
// may be nil to disable that half.
func NewRecorder(ctx context.Context, prices domain.ClearingPriceCache, bus domain.ResultBus, logger *slog.Logger) *Recorder {
	r := &Recorder{
		prices: prices,
		bus:    bus,
		logger: logger.With(slog.String("component", "result_recorder")),
		queue:  make(chan domain.MarketResult, 64),
		done:   make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// OnClearing enqueues a clearing result for recording. It never blocks.
func (r *Recorder) OnClearing(result domain.MarketResult) {
	select {
	case r.queue <- result:
	default:
		r.logger.Warn("recorder queue full, dropping result",
			slog.String("market", result.Market))
	}
}

// Close stops the worker after draining queued results.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for result := range r.queue {
		r.record(ctx, result)
	}
}

func (r *Recorder) record(ctx context.Context, result domain.MarketResult) {
	if r.prices != nil {
		for _, rec := range result.Records {
			if err := r.prices.SetPrice(ctx, result.Market, rec.Product.Start, rec.Price, result.ClearedAt); err != nil {
				r.logger.Error("cache clearing price",
					slog.String("market", result.Market),
					slog.Time("product", rec.Product.Start),
					slog.String("error", err.Error()))
			}
		}
	}
	if r.bus != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			r.logger.Error("marshal clearing result", slog.String("error", err.Error()))
			return
		}
		if err := r.bus.Publish(ctx, ResultChannel+result.Market, payload); err != nil {
			r.logger.Error("publish clearing result",
				slog.String("market", result.Market),
				slog.String("error", err.Error()))
		}
	}
}

var _ domain.ResultObserver = (*Recorder)(nil)
