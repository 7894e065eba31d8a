package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
)

// AddressStore persists wallet addresses. Lookups that match nothing return
// (nil, nil) except where noted.
type AddressStore interface {
	FindUnused(ctx context.Context, userID, currency string) (*WalletAddress, error)
	FindByAddress(ctx context.Context, address string) (*WalletAddress, error)
	FindByUserAndCurrency(ctx context.Context, userID, currency string) ([]*WalletAddress, error)
	SaveAddress(ctx context.Context, addr *WalletAddress) error
}

// DepositStore persists deposits.
type DepositStore interface {
	FindDepositByTxID(ctx context.Context, txID string) (*Deposit, error)
	FindPendingDeposits(ctx context.Context, currency string, limit int) ([]*Deposit, error)
	FindDepositsByUser(ctx context.Context, userID string, page, size int) ([]*Deposit, error)
	SaveDeposit(ctx context.Context, d *Deposit) error
}

// WithdrawalStore persists withdrawals. FindWithdrawalByID returns
// cherrors.ErrNotFound for unknown ids.
type WithdrawalStore interface {
	FindWithdrawalByID(ctx context.Context, id string) (*Withdrawal, error)
	FindWithdrawalsByStatus(ctx context.Context, status WithdrawalStatus, limit int) ([]*Withdrawal, error)
	FindWithdrawalsByUser(ctx context.Context, userID string, page, size int) ([]*Withdrawal, error)
	SaveWithdrawal(ctx context.Context, w *Withdrawal) error
}

// Repository is the gorm-backed implementation of the three stores. All
// writes are upserts (replace-by-id).
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) FindUnused(ctx context.Context, userID, currency string) (*WalletAddress, error) {
	var addr WalletAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ? AND used = ?", userID, currency, false).
		First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find unused address: %w", err)
	}
	return &addr, nil
}

func (r *Repository) FindByAddress(ctx context.Context, address string) (*WalletAddress, error) {
	var addr WalletAddress
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find address %s: %w", address, err)
	}
	return &addr, nil
}

func (r *Repository) FindByUserAndCurrency(ctx context.Context, userID, currency string) ([]*WalletAddress, error) {
	var addrs []*WalletAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		Order("created_at DESC").
		Find(&addrs).Error
	if err != nil {
		return nil, fmt.Errorf("find addresses for user %s: %w", userID, err)
	}
	return addrs, nil
}

func (r *Repository) SaveAddress(ctx context.Context, addr *WalletAddress) error {
	return r.db.WithContext(ctx).Save(addr).Error
}

func (r *Repository) FindDepositByTxID(ctx context.Context, txID string) (*Deposit, error) {
	var d Deposit
	err := r.db.WithContext(ctx).Where("tx_id = ?", txID).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find deposit by txId %s: %w", txID, err)
	}
	return &d, nil
}

func (r *Repository) FindPendingDeposits(ctx context.Context, currency string, limit int) ([]*Deposit, error) {
	if limit <= 0 {
		limit = 100
	}
	var deposits []*Deposit
	err := r.db.WithContext(ctx).
		Where("currency = ? AND status = ?", currency, DepositStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("find pending deposits: %w", err)
	}
	return deposits, nil
}

func (r *Repository) FindDepositsByUser(ctx context.Context, userID string, page, size int) ([]*Deposit, error) {
	var deposits []*Deposit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(pageSize(size)).
		Offset(pageOffset(page, size)).
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("find deposits for user %s: %w", userID, err)
	}
	return deposits, nil
}

func (r *Repository) SaveDeposit(ctx context.Context, d *Deposit) error {
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *Repository) FindWithdrawalByID(ctx context.Context, id string) (*Withdrawal, error) {
	var w Withdrawal
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("withdrawal %s: %w", id, cherrors.ErrNotFound)
		}
		return nil, fmt.Errorf("find withdrawal %s: %w", id, err)
	}
	return &w, nil
}

func (r *Repository) FindWithdrawalsByStatus(ctx context.Context, status WithdrawalStatus, limit int) ([]*Withdrawal, error) {
	if limit <= 0 {
		limit = 100
	}
	var withdrawals []*Withdrawal
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("find %s withdrawals: %w", status, err)
	}
	return withdrawals, nil
}

func (r *Repository) FindWithdrawalsByUser(ctx context.Context, userID string, page, size int) ([]*Withdrawal, error) {
	var withdrawals []*Withdrawal
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(pageSize(size)).
		Offset(pageOffset(page, size)).
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("find withdrawals for user %s: %w", userID, err)
	}
	return withdrawals, nil
}

func (r *Repository) SaveWithdrawal(ctx context.Context, w *Withdrawal) error {
	return r.db.WithContext(ctx).Save(w).Error
}

func pageSize(size int) int {
	if size <= 0 || size > 200 {
		return 20
	}
	return size
}

func pageOffset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize(size)
}
