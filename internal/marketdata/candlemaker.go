package marketdata

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
	"github.com/coinharbor/coinharbor/internal/matching"
	"github.com/coinharbor/coinharbor/pkg/metrics"
)

// CandleMaker consumes the order-book log stream and maintains one candle
// series per (product, granularity). It only reacts to OrderMatch records;
// everything else on the stream is ignored.
//
// Correctness rests on the per-product TradeID continuity check applied
// before any mutation:
//   - TradeID already applied: the record is a redelivery, discarded.
//   - TradeID skips ahead: the log was lost or reordered; a SequenceGapError
//     halts the consumer rather than let it publish a wrong series.
//
// The seven granularity rows for one trade are written without a cross-row
// transaction, so a crash can leave the series at different TradeIDs. The
// duplicate-discard path makes the subsequent offset replay converge: fully
// applied granularities no-op, partially applied ones resume from their own
// TradeID.
type CandleMaker struct {
	matching.NoopLogHandler

	store  CandleStore
	codec  *matching.LogCodec
	logger *zap.Logger
}

func NewCandleMaker(store CandleStore, logger *zap.Logger) *CandleMaker {
	return &CandleMaker{
		store:  store,
		codec:  matching.NewLogCodec(logger),
		logger: logger,
	}
}

// Handle implements streaming.Handler.
func (m *CandleMaker) Handle(ctx context.Context, msg kafka.Message) error {
	l, err := m.codec.Decode(msg.Value)
	if err != nil {
		return err
	}
	return matching.DispatchLog(ctx, l, m, m.logger)
}

// OnOrderMatch applies one trade to every granularity. The per-granularity
// rows are independent and computed in parallel.
func (m *CandleMaker) OnOrderMatch(ctx context.Context, l *matching.OrderMatchLog) error {
	results := make([]*Candle, len(Granularities))

	g, gctx := errgroup.WithContext(ctx)
	for i, granularity := range Granularities {
		i, granularity := i, granularity
		g.Go(func() error {
			candle, err := m.makeCandle(gctx, l, granularity)
			if err != nil {
				return err
			}
			results[i] = candle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	candles := make([]*Candle, 0, len(results))
	for _, candle := range results {
		if candle != nil {
			candles = append(candles, candle)
		}
	}
	if len(candles) == 0 {
		return nil
	}

	if err := m.store.SaveAll(ctx, candles); err != nil {
		return fmt.Errorf("persist candles for trade %d: %w", l.TradeID, err)
	}
	metrics.CandlesUpserted.Add(float64(len(candles)))
	return nil
}

// makeCandle returns the updated candle for one granularity, or nil when the
// trade was already applied to that series.
func (m *CandleMaker) makeCandle(ctx context.Context, l *matching.OrderMatchLog, granularity int64) (*Candle, error) {
	stored, err := m.store.FindLatest(ctx, l.ProductID, granularity)
	if err != nil {
		return nil, err
	}

	if stored != nil {
		if stored.TradeID >= l.TradeID {
			m.logger.Debug("redelivered trade discarded",
				zap.String("product_id", l.ProductID),
				zap.Int64("granularity", granularity),
				zap.Int64("trade_id", l.TradeID),
				zap.Int64("applied_trade_id", stored.TradeID))
			metrics.TradesDiscarded.Inc()
			return nil, nil
		}
		if stored.TradeID+1 != l.TradeID {
			return nil, &cherrors.SequenceGapError{
				ProductID:   l.ProductID,
				Granularity: granularity,
				Expected:    stored.TradeID + 1,
				Actual:      l.TradeID,
			}
		}
	}

	bucket := BucketTime(l.Time, granularity)

	var candle *Candle
	if stored == nil || stored.Time != bucket {
		candle = &Candle{
			ID:          candleID(l.ProductID, granularity, bucket),
			ProductID:   l.ProductID,
			Granularity: granularity,
			Time:        bucket,
			Open:        l.Price,
			High:        l.Price,
			Low:         l.Price,
			Close:       l.Price,
			Volume:      l.Size,
		}
	} else {
		candle = stored
		candle.Close = l.Price
		candle.Low = decimal.Min(candle.Low, l.Price)
		candle.High = decimal.Max(candle.High, l.Price)
		candle.Volume = candle.Volume.Add(l.Size)
	}
	candle.TradeID = l.TradeID
	return candle, nil
}
