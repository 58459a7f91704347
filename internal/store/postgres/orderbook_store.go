package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridsim/marketsim/internal/domain"
)

// OrderbookStore implements domain.OrderbookStore using PostgreSQL.
type OrderbookStore struct {
	pool *pgxpool.Pool
}

// NewOrderbookStore creates a store backed by the given connection pool.
func NewOrderbookStore(pool *pgxpool.Pool) *OrderbookStore {
	return &OrderbookStore{pool: pool}
}

// InsertOrders writes the partitioned book of one cleared period in a single
// batch.
func (s *OrderbookStore) InsertOrders(ctx context.Context, market string, period time.Time, accepted, rejected domain.Orderbook) error {
	total := len(accepted) + len(rejected)
	if total == 0 {
		return nil
	}

	const query = `
		INSERT INTO cleared_orders (
			id, market, period, bid_type, start_time, end_time,
			price, volume, accepted, accepted_price, accepted_volume,
			agent_addr, agent_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id, market, period) DO NOTHING`

	batch := &pgx.Batch{}
	queue := func(book domain.Orderbook, isAccepted bool) {
		for _, o := range book {
			batch.Queue(query,
				o.ID, market, period, string(o.BidType), o.Start, o.End,
				o.Price, o.Volume, isAccepted, o.AcceptedPrice, o.AcceptedVolume,
				o.Agent.Addr, o.Agent.ID,
			)
		}
	}
	queue(accepted, true)
	queue(rejected, false)

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < total; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert cleared orders for %s: %w", market, err)
		}
	}
	return nil
}

// ListByPeriod returns the partitioned book of one cleared period.
func (s *OrderbookStore) ListByPeriod(ctx context.Context, market string, period time.Time) (domain.Orderbook, domain.Orderbook, error) {
	const query = `
		SELECT id, bid_type, start_time, end_time, price, volume,
			accepted, accepted_price, accepted_volume, agent_addr, agent_id
		FROM cleared_orders
		WHERE market = $1 AND period = $2
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, market, period)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list cleared orders for %s: %w", market, err)
	}
	defer rows.Close()

	var accepted, rejected domain.Orderbook
	for rows.Next() {
		var o domain.Order
		var bidType string
		var isAccepted bool
		if err := rows.Scan(&o.ID, &bidType, &o.Start, &o.End, &o.Price, &o.Volume,
			&isAccepted, &o.AcceptedPrice, &o.AcceptedVolume, &o.Agent.Addr, &o.Agent.ID); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan cleared order: %w", err)
		}
		o.BidType = domain.BidType(bidType)
		if isAccepted {
			accepted = append(accepted, o)
		} else {
			rejected = append(rejected, o)
		}
	}
	return accepted, rejected, rows.Err()
}
