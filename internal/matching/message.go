package matching

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MessageType tags the general matching-engine message stream. Its tag
// namespace is disjoint from LogType: the two streams use separate topics
// and separate codecs.
type MessageType byte

const (
	MessageTypeCommandStart MessageType = iota + 1
	MessageTypeCommandEnd
	MessageTypeAccount
	MessageTypeProduct
	MessageTypeOrder
	MessageTypeTrade
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeCommandStart:
		return "command_start"
	case MessageTypeCommandEnd:
		return "command_end"
	case MessageTypeAccount:
		return "account"
	case MessageTypeProduct:
		return "product"
	case MessageTypeOrder:
		return "order"
	case MessageTypeTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Message is a record on the general engine message stream.
type Message interface {
	MessageType() MessageType
}

// CommandStartMessage brackets the effects of one command.
type CommandStartMessage struct {
	CommandOffset int64     `json:"commandOffset"`
	Sequence      int64     `json:"sequence"`
	Time          time.Time `json:"time"`
}

func (m *CommandStartMessage) MessageType() MessageType { return MessageTypeCommandStart }

// CommandEndMessage closes the bracket opened by CommandStartMessage.
type CommandEndMessage struct {
	CommandOffset int64     `json:"commandOffset"`
	Sequence      int64     `json:"sequence"`
	Time          time.Time `json:"time"`
}

func (m *CommandEndMessage) MessageType() MessageType { return MessageTypeCommandEnd }

// AccountMessage reports a ledger balance change.
type AccountMessage struct {
	UserID    string          `json:"userId"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Hold      decimal.Decimal `json:"hold"`
	Sequence  int64           `json:"sequence"`
	Time      time.Time       `json:"time"`
}

func (m *AccountMessage) MessageType() MessageType { return MessageTypeAccount }

// ProductMessage reports a product definition taking effect.
type ProductMessage struct {
	ProductID     string    `json:"productId"`
	BaseCurrency  string    `json:"baseCurrency"`
	QuoteCurrency string    `json:"quoteCurrency"`
	Sequence      int64     `json:"sequence"`
	Time          time.Time `json:"time"`
}

func (m *ProductMessage) MessageType() MessageType { return MessageTypeProduct }

// OrderMessage reports an order lifecycle change.
type OrderMessage struct {
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId"`
	ProductID     string          `json:"productId"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	RemainingSize decimal.Decimal `json:"remainingSize"`
	Status        string          `json:"status"`
	Sequence      int64           `json:"sequence"`
	Time          time.Time       `json:"time"`
}

func (m *OrderMessage) MessageType() MessageType { return MessageTypeOrder }

// TradeMessage reports an execution on the general stream.
type TradeMessage struct {
	TradeID   int64           `json:"tradeId"`
	ProductID string          `json:"productId"`
	TakerID   string          `json:"takerId"`
	MakerID   string          `json:"makerId"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      Side            `json:"side"`
	Sequence  int64           `json:"sequence"`
	Time      time.Time       `json:"time"`
}

func (m *TradeMessage) MessageType() MessageType { return MessageTypeTrade }

// GenericMessage is the unknown-tag envelope for the message stream.
type GenericMessage struct {
	Tag    MessageType     `json:"-"`
	Fields json.RawMessage `json:"-"`
}

func (m *GenericMessage) MessageType() MessageType { return m.Tag }
