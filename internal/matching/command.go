// Package matching defines the typed wire protocol spoken with the matching
// engine: commands sent to it and the log events it emits. The engine itself
// is an external collaborator; this package only owns the frame format and
// the routing rules.
package matching

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CommandType is the single-byte tag identifying a command variant on the
// wire.
type CommandType byte

const (
	CommandTypePutProduct CommandType = iota + 1
	CommandTypeDeposit
	CommandTypePlaceOrder
	CommandTypeCancelOrder
	CommandTypeWithdrawal
)

func (t CommandType) String() string {
	switch t {
	case CommandTypePutProduct:
		return "put_product"
	case CommandTypeDeposit:
		return "deposit"
	case CommandTypePlaceOrder:
		return "place_order"
	case CommandTypeCancelOrder:
		return "cancel_order"
	case CommandTypeWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Command is an instruction for the matching engine. The type tag is derived
// from the concrete variant, never stored as settable state, so a frame's
// tag can not disagree with its payload. RoutingKey returns the Kafka
// message key: all commands sharing a key are delivered to the engine in
// submission order.
type Command interface {
	CommandType() CommandType
	RoutingKey() string
}

// PutProductCommand registers or updates a tradable product.
type PutProductCommand struct {
	ProductID      string `json:"productId"`
	BaseCurrency   string `json:"baseCurrency"`
	QuoteCurrency  string `json:"quoteCurrency"`
	BaseScale      int32  `json:"baseScale"`
	QuoteScale     int32  `json:"quoteScale"`
	BaseMinSize    string `json:"baseMinSize,omitempty"`
	QuoteMinSize   string `json:"quoteMinSize,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	TradingEnabled bool   `json:"tradingEnabled"`
}

func (c *PutProductCommand) CommandType() CommandType { return CommandTypePutProduct }
func (c *PutProductCommand) RoutingKey() string       { return c.ProductID }

// DepositCommand credits a user's ledger account. Amount is always
// positive.
type DepositCommand struct {
	UserID        string          `json:"userId"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
}

func (c *DepositCommand) CommandType() CommandType { return CommandTypeDeposit }

// Account-affecting commands key on user and currency so that every ledger
// mutation for one account lands in one ordered stream.
func (c *DepositCommand) RoutingKey() string { return c.UserID + ":" + c.Currency }

// PlaceOrderCommand submits a new order.
type PlaceOrderCommand struct {
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	ProductID string          `json:"productId"`
	OrderType string          `json:"orderType"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Funds     decimal.Decimal `json:"funds"`
	Time      time.Time       `json:"time"`
}

func (c *PlaceOrderCommand) CommandType() CommandType { return CommandTypePlaceOrder }
func (c *PlaceOrderCommand) RoutingKey() string       { return c.ProductID }

// CancelOrderCommand cancels a resting order.
type CancelOrderCommand struct {
	OrderID   string `json:"orderId"`
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
}

func (c *CancelOrderCommand) CommandType() CommandType { return CommandTypeCancelOrder }
func (c *CancelOrderCommand) RoutingKey() string       { return c.ProductID }

// WithdrawalCommand moves funds out of (negative amount) or back into
// (positive amount) a user's ledger account. A negative amount is the
// optimistic hold taken when a withdrawal is requested; the positive
// counterpart is the compensating credit after rejection or failure.
type WithdrawalCommand struct {
	UserID       string          `json:"userId"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	WithdrawalID string          `json:"withdrawalId"`
}

func (c *WithdrawalCommand) CommandType() CommandType { return CommandTypeWithdrawal }
func (c *WithdrawalCommand) RoutingKey() string       { return c.UserID + ":" + c.Currency }

// GenericCommand is the forward-compatibility envelope for frames whose tag
// this build does not recognize. It is the only variant that carries its tag
// as data.
type GenericCommand struct {
	Tag    CommandType     `json:"-"`
	Fields json.RawMessage `json:"-"`
}

func (c *GenericCommand) CommandType() CommandType { return c.Tag }
func (c *GenericCommand) RoutingKey() string       { return "" }
