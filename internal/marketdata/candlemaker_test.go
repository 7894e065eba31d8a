package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
	"github.com/coinharbor/coinharbor/internal/matching"
)

// memoryCandleStore keeps the latest candle per series and every saved row,
// mirroring the upsert-by-id behavior of the real repository.
type memoryCandleStore struct {
	mu      sync.Mutex
	candles map[string]*Candle
	latest  map[string]*Candle
}

func newMemoryCandleStore() *memoryCandleStore {
	return &memoryCandleStore{
		candles: make(map[string]*Candle),
		latest:  make(map[string]*Candle),
	}
}

func seriesKey(productID string, granularity int64) string {
	return candleID(productID, granularity, 0)
}

func (s *memoryCandleStore) FindLatest(_ context.Context, productID string, granularity int64) (*Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.latest[seriesKey(productID, granularity)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memoryCandleStore) SaveAll(_ context.Context, candles []*Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candles {
		cp := *c
		s.candles[c.ID] = &cp
		s.latest[seriesKey(c.ProductID, c.Granularity)] = &cp
	}
	return nil
}

func (s *memoryCandleStore) Find(_ context.Context, productID string, granularity int64, limit int) ([]*Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Candle
	for _, c := range s.candles {
		if c.ProductID == productID && c.Granularity == granularity {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func matchLog(tradeID int64, price, size string, at time.Time) *matching.OrderMatchLog {
	return &matching.OrderMatchLog{
		ProductID: "BTC-USDT",
		TradeID:   tradeID,
		Sequence:  tradeID * 10,
		Price:     decimal.RequireFromString(price),
		Size:      decimal.RequireFromString(size),
		Side:      matching.SideBuy,
		Time:      at,
	}
}

func TestCandleMakerAggregatesTrades(t *testing.T) {
	store := newMemoryCandleStore()
	maker := NewCandleMaker(store, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(100, "50000", "0.01", at)))
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(101, "50010", "0.02", at.Add(20*time.Second))))

	c, err := store.FindLatest(ctx, "BTC-USDT", 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.Open.Equal(decimal.RequireFromString("50000")), "open %s", c.Open)
	assert.True(t, c.High.Equal(decimal.RequireFromString("50010")), "high %s", c.High)
	assert.True(t, c.Low.Equal(decimal.RequireFromString("50000")), "low %s", c.Low)
	assert.True(t, c.Close.Equal(decimal.RequireFromString("50010")), "close %s", c.Close)
	assert.True(t, c.Volume.Equal(decimal.RequireFromString("0.03")), "volume %s", c.Volume)
	assert.Equal(t, int64(101), c.TradeID)

	// Every granularity advances in lockstep.
	for _, g := range Granularities {
		c, err := store.FindLatest(ctx, "BTC-USDT", g)
		require.NoError(t, err)
		require.NotNil(t, c, "granularity %d", g)
		assert.Equal(t, int64(101), c.TradeID, "granularity %d", g)
	}
}

func TestCandleMakerHighNeverDecreases(t *testing.T) {
	store := newMemoryCandleStore()
	maker := NewCandleMaker(store, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(1, "50000", "0.01", at)))
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(2, "49000", "0.01", at.Add(time.Second))))

	c, err := store.FindLatest(ctx, "BTC-USDT", 1)
	require.NoError(t, err)
	assert.True(t, c.High.Equal(decimal.RequireFromString("50000")), "high %s", c.High)
	assert.True(t, c.Low.Equal(decimal.RequireFromString("49000")), "low %s", c.Low)
}

func TestCandleMakerOpensNewBucket(t *testing.T) {
	store := newMemoryCandleStore()
	maker := NewCandleMaker(store, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 50, 0, time.UTC)
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(1, "50000", "0.01", at)))
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(2, "51000", "0.02", at.Add(30*time.Second))))

	// Second trade lands in the next 1m bucket but the same 5m bucket.
	oneMin, err := store.Find(ctx, "BTC-USDT", 1, 10)
	require.NoError(t, err)
	assert.Len(t, oneMin, 2)

	fiveMin, err := store.Find(ctx, "BTC-USDT", 5, 10)
	require.NoError(t, err)
	require.Len(t, fiveMin, 1)
	assert.True(t, fiveMin[0].Volume.Equal(decimal.RequireFromString("0.03")))

	latest, err := store.FindLatest(ctx, "BTC-USDT", 1)
	require.NoError(t, err)
	assert.True(t, latest.Open.Equal(decimal.RequireFromString("51000")))
	assert.True(t, latest.Volume.Equal(decimal.RequireFromString("0.02")))
}

func TestCandleMakerDiscardsRedeliveredTrade(t *testing.T) {
	store := newMemoryCandleStore()
	maker := NewCandleMaker(store, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(100, "50000", "0.01", at)))
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(101, "50010", "0.02", at)))

	before, err := store.FindLatest(ctx, "BTC-USDT", 1)
	require.NoError(t, err)

	// Redelivery after an uncommitted-offset restart.
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(101, "50010", "0.02", at)))

	after, err := store.FindLatest(ctx, "BTC-USDT", 1)
	require.NoError(t, err)
	assert.True(t, before.Volume.Equal(after.Volume), "volume changed on redelivery")
	assert.Equal(t, before.TradeID, after.TradeID)
}

func TestCandleMakerHaltsOnSequenceGap(t *testing.T) {
	store := newMemoryCandleStore()
	maker := NewCandleMaker(store, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	require.NoError(t, maker.OnOrderMatch(ctx, matchLog(101, "50000", "0.01", at)))

	err := maker.OnOrderMatch(ctx, matchLog(103, "50010", "0.02", at))
	var gap *cherrors.SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, int64(102), gap.Expected)
	assert.Equal(t, int64(103), gap.Actual)
	assert.True(t, cherrors.IsFatal(err))

	// Nothing was persisted for the gapped trade.
	c, err := store.FindLatest(ctx, "BTC-USDT", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(101), c.TradeID)
}

func TestBucketTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 34, 0, 0, time.UTC).Unix(), BucketTime(at, 1))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC).Unix(), BucketTime(at, 5))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC).Unix(), BucketTime(at, 30))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix(), BucketTime(at, 60))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix(), BucketTime(at, 360))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Unix(), BucketTime(at, 1440))
}
