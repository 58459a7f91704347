package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridsim/marketsim/internal/domain"
)

// ClearingPriceCache implements domain.ClearingPriceCache using Redis hashes.
// Each product's latest clearing price is stored at key
// "clearing:{market}:{productStartUnix}" with fields "price" and "ts".
type ClearingPriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClearingPriceCache creates a ClearingPriceCache backed by the given
// Client. Entries expire after ttl; a zero ttl keeps them forever.
func NewClearingPriceCache(c *Client, ttl time.Duration) *ClearingPriceCache {
	return &ClearingPriceCache{rdb: c.Underlying(), ttl: ttl}
}

func clearingKey(market string, productStart time.Time) string {
	return "clearing:" + market + ":" + strconv.FormatInt(productStart.Unix(), 10)
}

// SetPrice stores the latest clearing price for a market product.
func (pc *ClearingPriceCache) SetPrice(ctx context.Context, market string, productStart time.Time, price float64, clearedAt time.Time) error {
	key := clearingKey(market, productStart)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(clearedAt.UnixNano(), 10),
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set clearing price %s: %w", key, err)
	}
	return nil
}

// GetPrice retrieves the latest clearing price and timestamp for a market
// product. It returns domain.ErrNotFound when no price has been cached.
func (pc *ClearingPriceCache) GetPrice(ctx context.Context, market string, productStart time.Time) (float64, time.Time, error) {
	key := clearingKey(market, productStart)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get clearing price %s: %w", key, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", key, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}

	return price, time.Unix(0, tsNano), nil
}

var _ domain.ClearingPriceCache = (*ClearingPriceCache)(nil)
