package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedCandleStore is an explicit read-through cache over a CandleStore for
// the FindLatest hot path, invalidated on every write. Range queries bypass
// the cache. Cache failures degrade to the underlying store.
type CachedCandleStore struct {
	store  CandleStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCandleStore(store CandleStore, rdb *redis.Client, logger *zap.Logger) *CachedCandleStore {
	return &CachedCandleStore{
		store:  store,
		rdb:    rdb,
		ttl:    time.Hour,
		logger: logger,
	}
}

func latestKey(productID string, granularity int64) string {
	return fmt.Sprintf("candle:latest:%s:%d", productID, granularity)
}

func (c *CachedCandleStore) FindLatest(ctx context.Context, productID string, granularity int64) (*Candle, error) {
	key := latestKey(productID, granularity)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var candle Candle
		if err := json.Unmarshal(data, &candle); err == nil {
			return &candle, nil
		}
		c.logger.Warn("corrupt cached candle dropped", zap.String("key", key))
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("candle cache read failed", zap.String("key", key), zap.Error(err))
	}

	candle, err := c.store.FindLatest(ctx, productID, granularity)
	if err != nil || candle == nil {
		return candle, err
	}
	if data, err := json.Marshal(candle); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("candle cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return candle, nil
}

// SaveAll writes through to the store and invalidates the affected latest
// entries.
func (c *CachedCandleStore) SaveAll(ctx context.Context, candles []*Candle) error {
	if err := c.store.SaveAll(ctx, candles); err != nil {
		return err
	}
	keys := make([]string, 0, len(candles))
	for _, candle := range candles {
		keys = append(keys, latestKey(candle.ProductID, candle.Granularity))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("candle cache invalidation failed", zap.Error(err))
	}
	return nil
}

func (c *CachedCandleStore) Find(ctx context.Context, productID string, granularity int64, limit int) ([]*Candle, error) {
	return c.store.Find(ctx, productID, granularity, limit)
}
