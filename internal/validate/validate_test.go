package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/marketsim/internal/domain"
)

var (
	t0        = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	submitter = domain.AgentID{Addr: "world", ID: "plant1"}
)

func baseConfig() domain.MarketConfig {
	return domain.MarketConfig{
		Name:      "eom",
		MinPrice:  0,
		MaxPrice:  100,
		MaxVolume: 100,
	}
}

func hourProducts(n int) []domain.Product {
	var products []domain.Product
	start := t0
	for i := 0; i < n; i++ {
		products = append(products, domain.Product{Start: start, End: start.Add(time.Hour)})
		start = start.Add(time.Hour)
	}
	return products
}

func simpleBid(price, volume float64) domain.Order {
	return domain.Order{
		Start:   t0,
		End:     t0.Add(time.Hour),
		BidType: domain.BidTypeSimple,
		Price:   price,
		Volume:  volume,
	}
}

func TestBatchAcceptsValidSimpleBid(t *testing.T) {
	got, err := Batch(domain.Orderbook{simpleBid(50, 10)}, baseConfig(), submitter, hourProducts(1))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, submitter, got[0].Agent)
	assert.NotEmpty(t, got[0].ID)
	assert.Nil(t, got[0].OnlyHours)
	assert.Equal(t, 50.0, got[0].Price)
	assert.Equal(t, 10.0, got[0].Volume)
}

func TestBatchPreservesArrivalOrder(t *testing.T) {
	raw := domain.Orderbook{simpleBid(10, 1), simpleBid(20, 2), simpleBid(30, 3)}
	got, err := Batch(raw, baseConfig(), submitter, hourProducts(1))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, price := range []float64{10, 20, 30} {
		assert.Equal(t, price, got[i].Price)
	}
}

func TestBatchRejections(t *testing.T) {
	cfg := baseConfig()

	tests := []struct {
		name  string
		cfg   domain.MarketConfig
		order domain.Order
		check string
	}{
		{"unknown bid type", cfg, func() domain.Order {
			o := simpleBid(50, 10)
			o.BidType = "XX"
			return o
		}(), CheckBidType},
		{"price above max", cfg, simpleBid(101, 10), CheckMaxPrice},
		{"price below min", cfg, simpleBid(-1, 10), CheckMinPrice},
		{"volume above max", cfg, simpleBid(50, 101), CheckMaxVolume},
		{"negative volume above max magnitude", cfg, simpleBid(50, -101), CheckMaxVolume},
		{"price off tick", func() domain.MarketConfig {
			c := baseConfig()
			c.PriceTick = 5
			return c
		}(), simpleBid(52, 10), CheckPriceTick},
		{"volume off tick", func() domain.MarketConfig {
			c := baseConfig()
			c.VolumeTick = 10
			return c
		}(), simpleBid(50, 15), CheckVolumeTick},
		{"missing additional field", func() domain.MarketConfig {
			c := baseConfig()
			c.AdditionalFields = []string{"node"}
			return c
		}(), simpleBid(50, 10), CheckField},
		{"window off product grid", cfg, func() domain.Order {
			o := simpleBid(50, 10)
			o.Start = t0.Add(30 * time.Minute)
			o.End = o.Start.Add(time.Hour)
			return o
		}(), CheckProduct},
		{"linked bid without parent", cfg, func() domain.Order {
			o := simpleBid(50, 10)
			o.BidType = domain.BidTypeLinked
			return o
		}(), CheckLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Batch(domain.Orderbook{tt.order}, tt.cfg, submitter, hourProducts(1))
			var rej *RejectionError
			require.True(t, errors.As(err, &rej), "expected RejectionError, got %v", err)
			assert.Equal(t, tt.check, rej.Check)
		})
	}
}

func TestBatchReplacesSubmittedIDs(t *testing.T) {
	a := simpleBid(50, 10)
	a.ID = "same-id"
	b := simpleBid(60, 20)
	b.ID = "same-id"

	got, err := Batch(domain.Orderbook{a, b}, baseConfig(), submitter, hourProducts(1))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.NotEqual(t, "same-id", got[0].ID)
	assert.NotEqual(t, "same-id", got[1].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID, "colliding submitted ids must not survive into the book")
}

func TestBatchRebindsLinkedBids(t *testing.T) {
	products := hourProducts(2)
	block := domain.Order{
		ID:      "b1",
		Start:   products[0].Start,
		End:     products[1].End,
		BidType: domain.BidTypeBlock,
		Price:   40,
		Profile: map[int64]float64{
			products[0].Key(): 5,
			products[1].Key(): 5,
		},
	}
	linked := simpleBid(50, 10)
	linked.BidType = domain.BidTypeLinked
	linked.LinkedTo = "b1"

	got, err := Batch(domain.Orderbook{block, linked}, baseConfig(), submitter, products)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.NotEqual(t, "b1", got[0].ID)
	assert.Equal(t, got[0].ID, got[1].LinkedTo, "linked bid must follow its parent's fresh id")

	// A parent reference outside the submission is a link violation.
	linked.LinkedTo = "elsewhere"
	_, err = Batch(domain.Orderbook{block, linked}, baseConfig(), submitter, products)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CheckLink, rej.Check)

	// So are two blocks claiming the same submitted id.
	other := block
	_, err = Batch(domain.Orderbook{block, other}, baseConfig(), submitter, products)
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CheckLink, rej.Check)
}

func TestBatchIsAtomic(t *testing.T) {
	raw := domain.Orderbook{simpleBid(50, 10), simpleBid(200, 10)}
	got, err := Batch(raw, baseConfig(), submitter, hourProducts(1))
	require.Error(t, err)
	assert.Nil(t, got, "a single failing order must discard the whole batch")

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 1, rej.Index)
}

func TestTickNormalization(t *testing.T) {
	cfg := baseConfig()
	cfg.PriceTick = 5
	cfg.VolumeTick = 2

	got, err := Batch(domain.Orderbook{simpleBid(50, 10)}, cfg, submitter, hourProducts(1))
	require.NoError(t, err)

	// Tick regime carries integral tick counts: 50/5 and 10/2.
	assert.Equal(t, 10.0, got[0].Price)
	assert.Equal(t, 5.0, got[0].Volume)
}

func TestTickBoundsArePreDivided(t *testing.T) {
	cfg := baseConfig()
	cfg.PriceTick = 5
	cfg.MaxPrice = 100

	// 100 currency units = 20 ticks; exactly at the bound is accepted.
	_, err := Batch(domain.Orderbook{simpleBid(100, 10)}, cfg, submitter, hourProducts(1))
	assert.NoError(t, err)

	_, err = Batch(domain.Orderbook{simpleBid(105, 10)}, cfg, submitter, hourProducts(1))
	assert.Error(t, err)
}

func TestBlockBidValidation(t *testing.T) {
	products := hourProducts(3)
	block := domain.Order{
		Start:   products[0].Start,
		End:     products[2].End,
		BidType: domain.BidTypeBlock,
		Price:   40,
		Profile: map[int64]float64{
			products[0].Key(): 5,
			products[1].Key(): 5,
			products[2].Key(): 5,
		},
	}

	got, err := Batch(domain.Orderbook{block}, baseConfig(), submitter, products)
	require.NoError(t, err)
	assert.Len(t, got[0].Profile, 3)

	// A profile volume over the bound rejects the block.
	block.Profile[products[1].Key()] = 101
	_, err = Batch(domain.Orderbook{block}, baseConfig(), submitter, products)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CheckMaxVolume, rej.Check)

	// A profile key outside the eligible products rejects the block.
	block.Profile[products[1].Key()] = 5
	block.Profile[products[2].Key()+3600] = 5
	_, err = Batch(domain.Orderbook{block}, baseConfig(), submitter, products)
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CheckProduct, rej.Check)
}
