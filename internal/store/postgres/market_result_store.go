package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridsim/marketsim/internal/domain"
)

// MarketResultStore implements domain.MarketResultStore using PostgreSQL.
type MarketResultStore struct {
	pool *pgxpool.Pool
}

// NewMarketResultStore creates a store backed by the given connection pool.
func NewMarketResultStore(pool *pgxpool.Pool) *MarketResultStore {
	return &MarketResultStore{pool: pool}
}

// InsertRecords writes one row per clearing record in a single batch.
func (s *MarketResultStore) InsertRecords(ctx context.Context, market string, period time.Time, records []domain.ClearingRecord) error {
	if len(records) == 0 {
		return nil
	}

	const query = `
		INSERT INTO market_results (
			market, period, product_start, product_end,
			price, supply_volume, demand_volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			market, period, rec.Product.Start, rec.Product.End,
			rec.Price, rec.SupplyVolume, rec.DemandVolume,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert market results for %s: %w", market, err)
		}
	}
	return nil
}

// ListByMarket returns the most recent clearing records for a market, newest
// first.
func (s *MarketResultStore) ListByMarket(ctx context.Context, market string, limit int) ([]domain.ClearingRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT product_start, product_end, price, supply_volume, demand_volume
		FROM market_results
		WHERE market = $1
		ORDER BY period DESC, product_start ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, market, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market results for %s: %w", market, err)
	}
	defer rows.Close()

	var records []domain.ClearingRecord
	for rows.Next() {
		var rec domain.ClearingRecord
		if err := rows.Scan(&rec.Product.Start, &rec.Product.End, &rec.Price, &rec.SupplyVolume, &rec.DemandVolume); err != nil {
			return nil, fmt.Errorf("postgres: scan market result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
