// Package marketdata derives OHLCV candles from the order-book log stream.
package marketdata

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Granularities are the supported candle widths in minutes.
var Granularities = []int64{1, 5, 15, 30, 60, 360, 1440}

// Candle is one OHLCV bucket for a (product, granularity) series. TradeID is
// the last trade applied to the series; it only ever increases, and Time
// changes only when a new bucket begins.
type Candle struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	ProductID   string          `gorm:"size:32;index:idx_candle_series,priority:1" json:"productId"`
	Granularity int64           `gorm:"index:idx_candle_series,priority:2" json:"granularity"`
	Time        int64           `gorm:"index:idx_candle_series,priority:3" json:"time"`
	Open        decimal.Decimal `gorm:"type:numeric(36,18)" json:"open"`
	High        decimal.Decimal `gorm:"type:numeric(36,18)" json:"high"`
	Low         decimal.Decimal `gorm:"type:numeric(36,18)" json:"low"`
	Close       decimal.Decimal `gorm:"type:numeric(36,18)" json:"close"`
	Volume      decimal.Decimal `gorm:"type:numeric(36,18)" json:"volume"`
	TradeID     int64           `gorm:"column:trade_id" json:"tradeId"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`
}

func (Candle) TableName() string { return "candles" }

func candleID(productID string, granularity, bucketTime int64) string {
	return fmt.Sprintf("%s-%d-%d", productID, granularity, bucketTime)
}

// BucketTime floors t to the start of its granularity-wide bucket, in epoch
// seconds. Buckets are UTC-aligned.
func BucketTime(t time.Time, granularity int64) int64 {
	step := granularity * 60
	return t.Unix() - t.Unix()%step
}
