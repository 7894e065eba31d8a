package blockchain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MockBitcoinService simulates a Bitcoin node for local development. Sent
// transactions confirm after a short delay and generated addresses
// occasionally receive a small random deposit, so the full reconciliation
// path can be exercised without a chain.
type MockBitcoinService struct {
	minConf int
	logger  *zap.Logger

	mu        sync.Mutex
	addresses []string
	deposits  map[string]Transaction
	sent      map[string]TxStatus
}

func NewMockBitcoinService(minConf int, logger *zap.Logger) *MockBitcoinService {
	return &MockBitcoinService{
		minConf:  minConf,
		logger:   logger,
		deposits: make(map[string]Transaction),
		sent:     make(map[string]TxStatus),
	}
}

func (s *MockBitcoinService) CurrencyCode() string { return "BTC" }

func (s *MockBitcoinService) MinConfirmations() int { return s.minConf }

func (s *MockBitcoinService) GenerateAddress(ctx context.Context, userID string) (string, error) {
	address := "mock" + randomHex(20)
	s.mu.Lock()
	s.addresses = append(s.addresses, address)
	s.mu.Unlock()
	s.logger.Debug("mock address generated",
		zap.String("userId", userID), zap.String("address", address))
	return address, nil
}

func (s *MockBitcoinService) ValidateAddress(address string) bool {
	return strings.HasPrefix(address, "mock") && len(address) == 44
}

func (s *MockBitcoinService) TransactionConfirmations(ctx context.Context, txID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.deposits[txID]; ok {
		return tx.Confirmations, nil
	}
	if status, ok := s.sent[txID]; ok {
		if status == TxStatusConfirmed {
			return s.minConf, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("mock: unknown transaction %s", txID)
}

func (s *MockBitcoinService) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	txID := randomHex(32)
	s.mu.Lock()
	s.sent[txID] = TxStatusPending
	s.mu.Unlock()

	time.AfterFunc(10*time.Second, func() {
		s.mu.Lock()
		s.sent[txID] = TxStatusConfirmed
		s.mu.Unlock()
	})
	s.logger.Info("mock send",
		zap.String("address", address), zap.String("amount", amount.String()),
		zap.String("txId", txID))
	return txID, nil
}

func (s *MockBitcoinService) ScanForDeposits(ctx context.Context) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Age pending deposits one confirmation per scan.
	for id, tx := range s.deposits {
		if tx.Confirmations < s.minConf {
			tx.Confirmations++
			if tx.Confirmations >= s.minConf {
				tx.Status = TxStatusConfirmed
			}
			s.deposits[id] = tx
		}
	}

	// Roughly one scan in four lands a new deposit on a random address.
	if len(s.addresses) > 0 && mrand.Intn(4) == 0 {
		tx := Transaction{
			TxID:          randomHex(32),
			Address:       s.addresses[mrand.Intn(len(s.addresses))],
			Amount:        decimal.NewFromBigInt(big.NewInt(int64(mrand.Intn(90)+10)), -3),
			Confirmations: 0,
			Status:        TxStatusPending,
			Time:          time.Now(),
		}
		s.deposits[tx.TxID] = tx
		s.logger.Info("mock deposit created",
			zap.String("address", tx.Address), zap.String("amount", tx.Amount.String()))
	}

	txs := make([]Transaction, 0, len(s.deposits))
	for _, tx := range s.deposits {
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *MockBitcoinService) CheckWithdrawalStatus(ctx context.Context, txIDs []string) (map[string]TxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make(map[string]TxStatus, len(txIDs))
	for _, txID := range txIDs {
		if status, ok := s.sent[txID]; ok {
			statuses[txID] = status
		} else {
			statuses[txID] = TxStatusUnknown
		}
	}
	return statuses, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
