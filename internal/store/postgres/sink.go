package postgres

import (
	"context"
	"log/slog"

	"github.com/gridsim/marketsim/internal/domain"
)

// Sink is the persistence collaborator: a transport actor consuming
// store_order_book and store_market_results messages from market roles.
// Writes are fire-and-forget from the market's perspective; failures are
// logged, never propagated back into the simulation.
type Sink struct {
	results   domain.MarketResultStore
	orderbook domain.OrderbookStore
	logger    *slog.Logger
}

// NewSink creates a sink over the given stores.
func NewSink(results domain.MarketResultStore, orderbook domain.OrderbookStore, logger *slog.Logger) *Sink {
	return &Sink{
		results:   results,
		orderbook: orderbook,
		logger:    logger.With(slog.String("component", "sink")),
	}
}

// Handle implements transport.Handler.
func (s *Sink) Handle(env domain.Envelope) {
	ctx := context.Background()
	switch msg := env.Payload.(type) {
	case domain.StoreOrderbook:
		if err := s.orderbook.InsertOrders(ctx, msg.Sender, msg.Period, msg.Accepted, msg.Rejected); err != nil {
			s.logger.Error("store order book failed",
				slog.String("market", msg.Sender),
				slog.String("error", err.Error()),
			)
		}
	case domain.StoreMarketResults:
		if err := s.results.InsertRecords(ctx, msg.Sender, msg.Period, msg.Records); err != nil {
			s.logger.Error("store market results failed",
				slog.String("market", msg.Sender),
				slog.String("error", err.Error()),
			)
		}
	default:
		s.logger.Warn("unexpected sink message", slog.Any("payload", env.Payload))
	}
}
