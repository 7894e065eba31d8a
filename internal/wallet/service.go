package wallet

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
	"github.com/coinharbor/coinharbor/internal/matching"
	"github.com/coinharbor/coinharbor/internal/wallet/blockchain"
	"github.com/coinharbor/coinharbor/pkg/metrics"
)

// CommandSender publishes matching-engine commands. Satisfied by the kafka
// producer in production and by a recorder in tests.
type CommandSender interface {
	Send(ctx context.Context, cmd matching.Command) error
}

// Stores groups the persistence needed by the service. *Repository
// implements all three.
type Stores interface {
	AddressStore
	DepositStore
	WithdrawalStore
}

// Service owns the wallet lifecycle: address issuance, deposit crediting and
// the withdrawal state machine. Funds are held optimistically: requesting a
// withdrawal publishes a negative-amount command immediately, and a positive
// command of the same magnitude compensates every failure path.
type Service struct {
	stores Stores
	chains *blockchain.Registry
	sender CommandSender
	logger *zap.Logger
}

func NewService(stores Stores, chains *blockchain.Registry, sender CommandSender, logger *zap.Logger) *Service {
	return &Service{stores: stores, chains: chains, sender: sender, logger: logger}
}

// GenerateAddress returns a deposit address for the user, reusing an unused
// one if present so users cannot mint unbounded addresses.
func (s *Service) GenerateAddress(ctx context.Context, userID, currency string) (*WalletAddress, error) {
	chain := s.chains.Get(currency)
	if chain == nil {
		return nil, &cherrors.ValidationError{Field: "currency", Reason: "unsupported currency " + currency}
	}

	existing, err := s.stores.FindUnused(ctx, userID, strings.ToUpper(currency))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	address, err := chain.GenerateAddress(ctx, userID)
	if err != nil {
		return nil, err
	}
	addr := &WalletAddress{
		ID:       uuid.NewString(),
		UserID:   userID,
		Currency: strings.ToUpper(currency),
		Address:  address,
	}
	if err := s.stores.SaveAddress(ctx, addr); err != nil {
		return nil, err
	}
	s.logger.Info("deposit address issued",
		zap.String("userId", userID), zap.String("currency", addr.Currency),
		zap.String("address", address))
	return addr, nil
}

func (s *Service) GetAddresses(ctx context.Context, userID, currency string) ([]*WalletAddress, error) {
	return s.stores.FindByUserAndCurrency(ctx, userID, strings.ToUpper(currency))
}

func (s *Service) GetDeposits(ctx context.Context, userID string, page, size int) ([]*Deposit, error) {
	return s.stores.FindDepositsByUser(ctx, userID, page, size)
}

func (s *Service) GetWithdrawals(ctx context.Context, userID string, page, size int) ([]*Withdrawal, error) {
	return s.stores.FindWithdrawalsByUser(ctx, userID, page, size)
}

// RequestWithdrawal records a PENDING withdrawal and immediately publishes
// the hold (the negative amount) against the user's account.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, currency, address string, amount decimal.Decimal) (*Withdrawal, error) {
	chain := s.chains.Get(currency)
	if chain == nil {
		return nil, &cherrors.ValidationError{Field: "currency", Reason: "unsupported currency " + currency}
	}
	if !amount.IsPositive() {
		return nil, &cherrors.ValidationError{Field: "amount", Reason: "amount must be positive"}
	}
	if !chain.ValidateAddress(address) {
		return nil, &cherrors.ValidationError{Field: "address", Reason: "invalid " + chain.CurrencyCode() + " address"}
	}

	w := &Withdrawal{
		ID:       uuid.NewString(),
		UserID:   userID,
		Currency: strings.ToUpper(currency),
		Address:  address,
		Amount:   amount,
		Status:   WithdrawalStatusPending,
	}
	if err := s.stores.SaveWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	if err := s.sendWithdrawalCommand(ctx, w, amount.Neg()); err != nil {
		return nil, err
	}
	metrics.WithdrawalTransitions.WithLabelValues(string(WithdrawalStatusPending)).Inc()
	s.logger.Info("withdrawal requested",
		zap.String("withdrawalId", w.ID), zap.String("userId", userID),
		zap.String("currency", w.Currency), zap.String("amount", amount.String()))
	return w, nil
}

// ApproveWithdrawal moves a PENDING withdrawal to APPROVED, queueing it for
// the payout pass.
func (s *Service) ApproveWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	w, err := s.stores.FindWithdrawalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != WithdrawalStatusPending {
		return nil, &cherrors.StateConflictError{Entity: "withdrawal", ID: id, State: string(w.Status)}
	}
	if err := s.transition(ctx, w, WithdrawalStatusApproved); err != nil {
		return nil, err
	}
	return w, nil
}

// RejectWithdrawal moves a PENDING withdrawal to REJECTED and releases the
// hold with a compensating credit.
func (s *Service) RejectWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	w, err := s.stores.FindWithdrawalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != WithdrawalStatusPending {
		return nil, &cherrors.StateConflictError{Entity: "withdrawal", ID: id, State: string(w.Status)}
	}
	if err := s.transition(ctx, w, WithdrawalStatusRejected); err != nil {
		return nil, err
	}
	if err := s.sendWithdrawalCommand(ctx, w, w.Amount); err != nil {
		return nil, err
	}
	return w, nil
}

// ProcessPendingDeposits is the deposit reconciliation pass: it scans every
// chain backend and credits confirmed transactions exactly once, keyed by
// transaction id.
func (s *Service) ProcessPendingDeposits(ctx context.Context) {
	for _, chain := range s.chains.All() {
		txs, err := chain.ScanForDeposits(ctx)
		if err != nil {
			s.logger.Warn("deposit scan failed",
				zap.String("currency", chain.CurrencyCode()), zap.Error(err))
			continue
		}
		for _, tx := range txs {
			if err := s.observeDeposit(ctx, chain, tx); err != nil {
				s.logger.Error("deposit reconciliation failed",
					zap.String("txId", tx.TxID), zap.Error(err))
			}
		}
	}
	s.repollPendingDeposits(ctx)
}

func (s *Service) observeDeposit(ctx context.Context, chain blockchain.Service, tx blockchain.Transaction) error {
	existing, err := s.stores.FindDepositByTxID(ctx, tx.TxID)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.advanceDeposit(ctx, existing, tx.Confirmations, chain.MinConfirmations())
	}

	addr, err := s.stores.FindByAddress(ctx, tx.Address)
	if err != nil {
		return err
	}
	if addr == nil {
		s.logger.Warn("deposit to unknown address skipped",
			zap.String("currency", chain.CurrencyCode()),
			zap.String("address", tx.Address), zap.String("txId", tx.TxID))
		return nil
	}

	d := &Deposit{
		ID:            uuid.NewString(),
		UserID:        addr.UserID,
		Currency:      strings.ToUpper(chain.CurrencyCode()),
		Address:       tx.Address,
		TxID:          tx.TxID,
		Amount:        tx.Amount,
		Confirmations: tx.Confirmations,
		Status:        DepositStatusPending,
		CreatedAt:     tx.Time,
	}
	if err := s.stores.SaveDeposit(ctx, d); err != nil {
		return err
	}
	if !addr.Used {
		addr.Used = true
		if err := s.stores.SaveAddress(ctx, addr); err != nil {
			return err
		}
	}
	s.logger.Info("deposit observed",
		zap.String("txId", tx.TxID), zap.String("userId", addr.UserID),
		zap.String("amount", tx.Amount.String()),
		zap.Int("confirmations", tx.Confirmations))
	return s.advanceDeposit(ctx, d, tx.Confirmations, chain.MinConfirmations())
}

// advanceDeposit updates the confirmation count and credits the ledger once
// the threshold is reached. The Status guard makes the credit idempotent.
func (s *Service) advanceDeposit(ctx context.Context, d *Deposit, confirmations, minConf int) error {
	if d.Status != DepositStatusPending {
		return nil
	}
	if confirmations != d.Confirmations {
		d.Confirmations = confirmations
		if err := s.stores.SaveDeposit(ctx, d); err != nil {
			return err
		}
	}
	if confirmations < minConf {
		return nil
	}

	d.Status = DepositStatusCompleted
	if err := s.stores.SaveDeposit(ctx, d); err != nil {
		return err
	}
	if err := s.sender.Send(ctx, &matching.DepositCommand{
		UserID:        d.UserID,
		Currency:      d.Currency,
		Amount:        d.Amount,
		TransactionID: d.TxID,
	}); err != nil {
		return err
	}
	metrics.DepositsCompleted.Inc()
	s.logger.Info("deposit credited",
		zap.String("txId", d.TxID), zap.String("userId", d.UserID),
		zap.String("amount", d.Amount.String()))
	return nil
}

// repollPendingDeposits refreshes deposits whose transactions no longer show
// up in scans, so a deposit never stalls short of its threshold.
func (s *Service) repollPendingDeposits(ctx context.Context) {
	for _, chain := range s.chains.All() {
		pending, err := s.stores.FindPendingDeposits(ctx, strings.ToUpper(chain.CurrencyCode()), 100)
		if err != nil {
			s.logger.Warn("pending deposit lookup failed",
				zap.String("currency", chain.CurrencyCode()), zap.Error(err))
			continue
		}
		for _, d := range pending {
			conf, err := chain.TransactionConfirmations(ctx, d.TxID)
			if err != nil {
				s.logger.Warn("deposit confirmation poll failed",
					zap.String("txId", d.TxID), zap.Error(err))
				continue
			}
			if err := s.advanceDeposit(ctx, d, conf, chain.MinConfirmations()); err != nil {
				s.logger.Error("deposit advance failed",
					zap.String("txId", d.TxID), zap.Error(err))
			}
		}
	}
}

// ProcessPendingWithdrawals is the payout reconciliation pass. APPROVED
// withdrawals are broadcast and move to PROCESSING; PROCESSING withdrawals
// are polled until the chain confirms or fails them. Every failure after the
// hold releases it with a compensating credit.
func (s *Service) ProcessPendingWithdrawals(ctx context.Context) {
	s.broadcastApproved(ctx)
	s.pollProcessing(ctx)
}

func (s *Service) broadcastApproved(ctx context.Context) {
	approved, err := s.stores.FindWithdrawalsByStatus(ctx, WithdrawalStatusApproved, 100)
	if err != nil {
		s.logger.Warn("approved withdrawal lookup failed", zap.Error(err))
		return
	}
	for _, w := range approved {
		chain := s.chains.Get(w.Currency)
		if chain == nil {
			s.logger.Error("withdrawal for currency without backend",
				zap.String("withdrawalId", w.ID), zap.String("currency", w.Currency))
			continue
		}
		txID, err := chain.SendToAddress(ctx, w.Address, w.Amount)
		if err != nil {
			s.logger.Error("withdrawal broadcast failed",
				zap.String("withdrawalId", w.ID), zap.Error(err))
			if err := s.failWithdrawal(ctx, w); err != nil {
				s.logger.Error("withdrawal failure handling failed",
					zap.String("withdrawalId", w.ID), zap.Error(err))
			}
			continue
		}
		w.TxID = txID
		if err := s.transition(ctx, w, WithdrawalStatusProcessing); err != nil {
			s.logger.Error("withdrawal transition failed",
				zap.String("withdrawalId", w.ID), zap.Error(err))
		}
	}
}

func (s *Service) pollProcessing(ctx context.Context) {
	processing, err := s.stores.FindWithdrawalsByStatus(ctx, WithdrawalStatusProcessing, 100)
	if err != nil {
		s.logger.Warn("processing withdrawal lookup failed", zap.Error(err))
		return
	}

	byCurrency := make(map[string][]*Withdrawal)
	for _, w := range processing {
		byCurrency[w.Currency] = append(byCurrency[w.Currency], w)
	}

	for currency, ws := range byCurrency {
		chain := s.chains.Get(currency)
		if chain == nil {
			continue
		}
		txIDs := make([]string, 0, len(ws))
		for _, w := range ws {
			txIDs = append(txIDs, w.TxID)
		}
		statuses, err := chain.CheckWithdrawalStatus(ctx, txIDs)
		if err != nil {
			s.logger.Warn("withdrawal status check failed",
				zap.String("currency", currency), zap.Error(err))
			continue
		}
		for _, w := range ws {
			switch statuses[w.TxID] {
			case blockchain.TxStatusConfirmed:
				if err := s.transition(ctx, w, WithdrawalStatusCompleted); err != nil {
					s.logger.Error("withdrawal completion failed",
						zap.String("withdrawalId", w.ID), zap.Error(err))
				}
			case blockchain.TxStatusFailed:
				if err := s.failWithdrawal(ctx, w); err != nil {
					s.logger.Error("withdrawal failure handling failed",
						zap.String("withdrawalId", w.ID), zap.Error(err))
				}
			default:
				// Still pending or temporarily unknown, poll again next cycle.
			}
		}
	}
}

// failWithdrawal marks the withdrawal FAILED and refunds the hold.
func (s *Service) failWithdrawal(ctx context.Context, w *Withdrawal) error {
	if err := s.transition(ctx, w, WithdrawalStatusFailed); err != nil {
		return err
	}
	return s.sendWithdrawalCommand(ctx, w, w.Amount)
}

func (s *Service) transition(ctx context.Context, w *Withdrawal, to WithdrawalStatus) error {
	from := w.Status
	w.Status = to
	if err := s.stores.SaveWithdrawal(ctx, w); err != nil {
		w.Status = from
		return err
	}
	metrics.WithdrawalTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Info("withdrawal transitioned",
		zap.String("withdrawalId", w.ID),
		zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

func (s *Service) sendWithdrawalCommand(ctx context.Context, w *Withdrawal, amount decimal.Decimal) error {
	return s.sender.Send(ctx, &matching.WithdrawalCommand{
		UserID:       w.UserID,
		Currency:     w.Currency,
		Amount:       amount,
		WithdrawalID: w.ID,
	})
}
