// Package wallet reconciles blockchain deposits and withdrawals against the
// ledger. Balance changes never touch the ledger directly: they are emitted
// as commands to the matching engine, whose log is the source of truth.
package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus is the deposit lifecycle state.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusRejected  DepositStatus = "REJECTED"
)

// WithdrawalStatus is the withdrawal state-machine state.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved   WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected   WithdrawalStatus = "REJECTED"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
)

// WalletAddress is a deposit address handed to a user. At most one unused
// address per (user, currency) exists at a time.
type WalletAddress struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;index:idx_address_user" json:"userId"`
	Currency  string    `gorm:"size:16;index:idx_address_user" json:"currency"`
	Address   string    `gorm:"size:128;uniqueIndex" json:"address"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (WalletAddress) TableName() string { return "wallet_addresses" }

// Deposit is one observed on-chain transaction credited to a user. Unique
// per TxID.
type Deposit struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"size:36;index" json:"userId"`
	Currency      string          `gorm:"size:16" json:"currency"`
	Address       string          `gorm:"size:128" json:"address"`
	TxID          string          `gorm:"size:128;uniqueIndex" json:"txId"`
	Amount        decimal.Decimal `gorm:"type:numeric(36,18)" json:"amount"`
	Confirmations int             `json:"confirmations"`
	Status        DepositStatus   `gorm:"size:16;index" json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (Deposit) TableName() string { return "deposits" }

// Withdrawal is a user's request to move funds out, driven through its state
// machine by admin action and the two reconciliation passes.
type Withdrawal struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	UserID    string           `gorm:"size:36;index" json:"userId"`
	Currency  string           `gorm:"size:16" json:"currency"`
	Address   string           `gorm:"size:128" json:"address"`
	TxID      string           `gorm:"size:128" json:"txId,omitempty"`
	Amount    decimal.Decimal  `gorm:"type:numeric(36,18)" json:"amount"`
	Fee       decimal.Decimal  `gorm:"type:numeric(36,18)" json:"fee"`
	Status    WithdrawalStatus `gorm:"size:16;index" json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (Withdrawal) TableName() string { return "withdrawals" }
