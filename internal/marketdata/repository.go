package marketdata

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CandleStore is the persistence contract for candle series. FindLatest
// returns (nil, nil) when the series has no candles yet.
type CandleStore interface {
	FindLatest(ctx context.Context, productID string, granularity int64) (*Candle, error)
	SaveAll(ctx context.Context, candles []*Candle) error
	Find(ctx context.Context, productID string, granularity int64, limit int) ([]*Candle, error)
}

// CandleRepository is the gorm-backed CandleStore.
type CandleRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCandleRepository(db *gorm.DB, logger *zap.Logger) *CandleRepository {
	return &CandleRepository{db: db, logger: logger}
}

// FindLatest returns the most recent candle for the series, by bucket time
// descending.
func (r *CandleRepository) FindLatest(ctx context.Context, productID string, granularity int64) (*Candle, error) {
	var candle Candle
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND granularity = ?", productID, granularity).
		Order("time DESC").
		First(&candle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest candle %s/%dm: %w", productID, granularity, err)
	}
	return &candle, nil
}

// SaveAll upserts candles by id (replace-by-id semantics). The rows are
// independent series entries; there is no cross-row transaction guarantee
// and callers must tolerate partial application.
func (r *CandleRepository) SaveAll(ctx context.Context, candles []*Candle) error {
	if len(candles) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&candles).Error
	if err != nil {
		return fmt.Errorf("upsert %d candles: %w", len(candles), err)
	}
	return nil
}

// Find returns up to limit candles for the series, newest first.
func (r *CandleRepository) Find(ctx context.Context, productID string, granularity int64, limit int) ([]*Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var candles []*Candle
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND granularity = ?", productID, granularity).
		Order("time DESC").
		Limit(limit).
		Find(&candles).Error
	if err != nil {
		return nil, fmt.Errorf("find candles %s/%dm: %w", productID, granularity, err)
	}
	return candles, nil
}
