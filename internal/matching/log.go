package matching

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LogType tags the order-book log stream consumed by candle aggregation and
// the live feed. Disjoint tag namespace from MessageType.
type LogType byte

const (
	LogTypeOrderReceived LogType = iota + 1
	LogTypeOrderOpen
	LogTypeOrderMatch
	LogTypeOrderDone
	LogTypeOrderRejected
	LogTypeTicker
)

func (t LogType) String() string {
	switch t {
	case LogTypeOrderReceived:
		return "order_received"
	case LogTypeOrderOpen:
		return "order_open"
	case LogTypeOrderMatch:
		return "order_match"
	case LogTypeOrderDone:
		return "order_done"
	case LogTypeOrderRejected:
		return "order_rejected"
	case LogTypeTicker:
		return "ticker"
	default:
		return "unknown"
	}
}

// Log is a record on the order-book log stream.
type Log interface {
	LogType() LogType
}

// OrderReceivedLog records an order entering the engine.
type OrderReceivedLog struct {
	ProductID string          `json:"productId"`
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Funds     decimal.Decimal `json:"funds"`
	OrderType string          `json:"orderType"`
	Sequence  int64           `json:"sequence"`
	Time      time.Time       `json:"time"`
}

func (l *OrderReceivedLog) LogType() LogType { return LogTypeOrderReceived }

// OrderOpenLog records an order resting on the book.
type OrderOpenLog struct {
	ProductID     string          `json:"productId"`
	OrderID       string          `json:"orderId"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	RemainingSize decimal.Decimal `json:"remainingSize"`
	Sequence      int64           `json:"sequence"`
	Time          time.Time       `json:"time"`
}

func (l *OrderOpenLog) LogType() LogType { return LogTypeOrderOpen }

// OrderMatchLog records one executed trade. TradeID is monotonic per
// product; Sequence is monotonic per product across all log types. Candle
// aggregation depends on receiving these strictly in TradeID order.
type OrderMatchLog struct {
	ProductID    string          `json:"productId"`
	TradeID      int64           `json:"tradeId"`
	Sequence     int64           `json:"sequence"`
	TakerOrderID string          `json:"takerOrderId"`
	MakerOrderID string          `json:"makerOrderId"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Side         Side            `json:"side"`
	Time         time.Time       `json:"time"`
}

func (l *OrderMatchLog) LogType() LogType { return LogTypeOrderMatch }

// OrderDoneLog records an order leaving the book.
type OrderDoneLog struct {
	ProductID     string          `json:"productId"`
	OrderID       string          `json:"orderId"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	RemainingSize decimal.Decimal `json:"remainingSize"`
	Reason        string          `json:"reason"`
	Sequence      int64           `json:"sequence"`
	Time          time.Time       `json:"time"`
}

func (l *OrderDoneLog) LogType() LogType { return LogTypeOrderDone }

// OrderRejectedLog records an order the engine refused.
type OrderRejectedLog struct {
	ProductID string          `json:"productId"`
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Reason    string          `json:"reason"`
	Sequence  int64           `json:"sequence"`
	Time      time.Time       `json:"time"`
}

func (l *OrderRejectedLog) LogType() LogType { return LogTypeOrderRejected }

// TickerLog carries the rolling 24h/30d statistics published after a trade.
type TickerLog struct {
	ProductID string          `json:"productId"`
	TradeID   int64           `json:"tradeId"`
	Sequence  int64           `json:"sequence"`
	Price     decimal.Decimal `json:"price"`
	Side      Side            `json:"side"`
	LastSize  decimal.Decimal `json:"lastSize"`
	Time      time.Time       `json:"time"`

	Time24h   int64           `json:"time24h"`
	Open24h   decimal.Decimal `json:"open24h"`
	Close24h  decimal.Decimal `json:"close24h"`
	High24h   decimal.Decimal `json:"high24h"`
	Low24h    decimal.Decimal `json:"low24h"`
	Volume24h decimal.Decimal `json:"volume24h"`

	Time30d   int64           `json:"time30d"`
	Open30d   decimal.Decimal `json:"open30d"`
	Close30d  decimal.Decimal `json:"close30d"`
	High30d   decimal.Decimal `json:"high30d"`
	Low30d    decimal.Decimal `json:"low30d"`
	Volume30d decimal.Decimal `json:"volume30d"`
}

func (l *TickerLog) LogType() LogType { return LogTypeTicker }

// GenericLog is the unknown-tag envelope for the order-book log stream.
type GenericLog struct {
	Tag    LogType         `json:"-"`
	Fields json.RawMessage `json:"-"`
}

func (l *GenericLog) LogType() LogType { return l.Tag }
