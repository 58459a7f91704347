package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/marketsim/internal/domain"
)

type memPriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (m *memPriceCache) SetPrice(_ context.Context, market string, productStart time.Time, price float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices == nil {
		m.prices = make(map[string]float64)
	}
	m.prices[clearingKey(market, productStart)] = price
	return nil
}

func (m *memPriceCache) GetPrice(_ context.Context, market string, productStart time.Time) (float64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[clearingKey(market, productStart)]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

type memBus struct {
	mu       sync.Mutex
	channel  string
	payloads [][]byte
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = channel
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func TestRecorderCachesAndPublishes(t *testing.T) {
	prices := &memPriceCache{}
	bus := &memBus{}
	rec := NewRecorder(context.Background(), prices, bus, slog.Default())

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	result := domain.MarketResult{
		Market:    "eom",
		ClearedAt: start.Add(-time.Hour),
		Records: []domain.ClearingRecord{
			{Product: domain.Product{Start: start, End: start.Add(time.Hour)}, Price: 42.5},
		},
	}
	rec.OnClearing(result)
	rec.Close()

	got, _, err := prices.GetPrice(context.Background(), "eom", start)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got)

	require.Len(t, bus.payloads, 1)
	assert.Equal(t, ResultChannel+"eom", bus.channel)

	var decoded domain.MarketResult
	require.NoError(t, json.Unmarshal(bus.payloads[0], &decoded))
	assert.Equal(t, "eom", decoded.Market)
	assert.Equal(t, 42.5, decoded.Records[0].Price)
}
