package feed

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/matching"
)

// Consumer tails the order-book log and publishes match and ticker events to
// subscribed sessions. It ignores the record types the feed has no channel
// for.
type Consumer struct {
	matching.NoopLogHandler

	manager *SessionManager
	codec   *matching.LogCodec
	logger  *zap.Logger
}

func NewConsumer(manager *SessionManager, logger *zap.Logger) *Consumer {
	return &Consumer{
		manager: manager,
		codec:   matching.NewLogCodec(logger),
		logger:  logger,
	}
}

// Handle decodes one log record and fans it out.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	l, err := c.codec.Decode(msg.Value)
	if err != nil {
		return err
	}
	return matching.DispatchLog(ctx, l, c, c.logger)
}

type matchMessage struct {
	Type         string          `json:"type"`
	ProductID    string          `json:"productId"`
	TradeID      int64           `json:"tradeId"`
	Sequence     int64           `json:"sequence"`
	TakerOrderID string          `json:"takerOrderId"`
	MakerOrderID string          `json:"makerOrderId"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Side         matching.Side   `json:"side"`
	Time         time.Time       `json:"time"`
}

func (c *Consumer) OnOrderMatch(ctx context.Context, l *matching.OrderMatchLog) error {
	c.manager.Broadcast(l.ProductID, "match", matchMessage{
		Type:         "match",
		ProductID:    l.ProductID,
		TradeID:      l.TradeID,
		Sequence:     l.Sequence,
		TakerOrderID: l.TakerOrderID,
		MakerOrderID: l.MakerOrderID,
		Price:        l.Price,
		Size:         l.Size,
		Side:         l.Side,
		Time:         l.Time,
	})
	return nil
}

type tickerMessage struct {
	Type      string          `json:"type"`
	ProductID string          `json:"productId"`
	TradeID   int64           `json:"tradeId"`
	Sequence  int64           `json:"sequence"`
	Price     decimal.Decimal `json:"price"`
	Side      matching.Side   `json:"side"`
	LastSize  decimal.Decimal `json:"lastSize"`
	Time      time.Time       `json:"time"`
	Open24h   decimal.Decimal `json:"open24h"`
	Close24h  decimal.Decimal `json:"close24h"`
	High24h   decimal.Decimal `json:"high24h"`
	Low24h    decimal.Decimal `json:"low24h"`
	Volume24h decimal.Decimal `json:"volume24h"`
	Volume30d decimal.Decimal `json:"volume30d"`
}

func (c *Consumer) OnTicker(ctx context.Context, l *matching.TickerLog) error {
	c.manager.Broadcast(l.ProductID, "ticker", tickerMessage{
		Type:      "ticker",
		ProductID: l.ProductID,
		TradeID:   l.TradeID,
		Sequence:  l.Sequence,
		Price:     l.Price,
		Side:      l.Side,
		LastSize:  l.LastSize,
		Time:      l.Time,
		Open24h:   l.Open24h,
		Close24h:  l.Close24h,
		High24h:   l.High24h,
		Low24h:    l.Low24h,
		Volume24h: l.Volume24h,
		Volume30d: l.Volume30d,
	})
	return nil
}
