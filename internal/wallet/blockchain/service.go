// Package blockchain abstracts the per-currency chain backends the wallet
// reconciler talks to. Implementations are read-mostly: they generate
// addresses, scan for incoming transactions and report confirmation counts.
package blockchain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the chain-side view of a transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusConfirmed TxStatus = "CONFIRMED"
	TxStatusFailed    TxStatus = "FAILED"
	TxStatusUnknown   TxStatus = "UNKNOWN"
)

// Transaction is one observed on-chain transfer into a watched address.
type Transaction struct {
	TxID          string
	Address       string
	Amount        decimal.Decimal
	Confirmations int
	Status        TxStatus
	Time          time.Time
}

// Service is one chain backend. Implementations must be safe for concurrent
// use; the reconciliation workers call them from multiple goroutines.
type Service interface {
	// CurrencyCode returns the upper-case currency this backend serves.
	CurrencyCode() string

	// GenerateAddress returns a fresh deposit address for the user.
	GenerateAddress(ctx context.Context, userID string) (string, error)

	// ValidateAddress reports whether address is well formed for this chain.
	ValidateAddress(address string) bool

	// TransactionConfirmations returns the current confirmation count for
	// txID, or an error if the transaction is unknown to the node.
	TransactionConfirmations(ctx context.Context, txID string) (int, error)

	// SendToAddress broadcasts a payout and returns the transaction id.
	SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error)

	// ScanForDeposits returns recent incoming transactions. Callers
	// deduplicate by TxID, so overlap between scans is fine.
	ScanForDeposits(ctx context.Context) ([]Transaction, error)

	// CheckWithdrawalStatus resolves the status of each txID in one pass.
	CheckWithdrawalStatus(ctx context.Context, txIDs []string) (map[string]TxStatus, error)

	// MinConfirmations is the threshold at which a deposit is credited and
	// a withdrawal considered final.
	MinConfirmations() int
}
