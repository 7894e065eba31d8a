package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
	"github.com/coinharbor/coinharbor/internal/matching"
	"github.com/coinharbor/coinharbor/internal/wallet/blockchain"
)

// recordingSender captures published commands in order.
type recordingSender struct {
	mu   sync.Mutex
	cmds []matching.Command
}

func (r *recordingSender) Send(_ context.Context, cmd matching.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recordingSender) commands() []matching.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]matching.Command(nil), r.cmds...)
}

// fakeChain is a scriptable backend: deposits and withdrawal statuses are
// set by the test.
type fakeChain struct {
	mu         sync.Mutex
	deposits   []blockchain.Transaction
	statuses   map[string]blockchain.TxStatus
	sendErr    error
	nextAddr   int
	sendCount  int
	sentAmount decimal.Decimal
}

func (c *fakeChain) CurrencyCode() string { return "BTC" }
func (c *fakeChain) MinConfirmations() int { return 2 }

func (c *fakeChain) GenerateAddress(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextAddr++
	return "addr-" + string(rune('a'+c.nextAddr-1)), nil
}

func (c *fakeChain) ValidateAddress(address string) bool { return address != "bogus" }

func (c *fakeChain) TransactionConfirmations(_ context.Context, txID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.deposits {
		if tx.TxID == txID {
			return tx.Confirmations, nil
		}
	}
	return 0, nil
}

func (c *fakeChain) SendToAddress(_ context.Context, _ string, amount decimal.Decimal) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sendCount++
	c.sentAmount = amount
	return "sent-tx-1", nil
}

func (c *fakeChain) ScanForDeposits(context.Context) ([]blockchain.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]blockchain.Transaction(nil), c.deposits...), nil
}

func (c *fakeChain) CheckWithdrawalStatus(_ context.Context, txIDs []string) (map[string]blockchain.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]blockchain.TxStatus, len(txIDs))
	for _, id := range txIDs {
		status, ok := c.statuses[id]
		if !ok {
			status = blockchain.TxStatusPending
		}
		out[id] = status
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeChain, *recordingSender, *Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&WalletAddress{}, &Deposit{}, &Withdrawal{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	chain := &fakeChain{statuses: make(map[string]blockchain.TxStatus)}
	registry := blockchain.NewStaticRegistry(chain)
	sender := &recordingSender{}
	repo := NewRepository(db, zap.NewNop())
	return NewService(repo, registry, sender, zap.NewNop()), chain, sender, repo
}

func TestGenerateAddressReusesUnused(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GenerateAddress(ctx, "u1", "btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", first.Currency)

	second, err := svc.GenerateAddress(ctx, "u1", "BTC")
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
}

func TestGenerateAddressUnsupportedCurrency(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GenerateAddress(context.Background(), "u1", "DOGE")
	var ve *cherrors.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRequestWithdrawalPublishesHold(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusPending, w.Status)

	cmds := sender.commands()
	require.Len(t, cmds, 1)
	hold, ok := cmds[0].(*matching.WithdrawalCommand)
	require.True(t, ok)
	assert.Equal(t, "u1", hold.UserID)
	assert.Equal(t, w.ID, hold.WithdrawalID)
	assert.True(t, hold.Amount.Equal(decimal.RequireFromString("-1.5")), "hold %s", hold.Amount)
}

func TestRequestWithdrawalValidation(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	var ve *cherrors.ValidationError

	_, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.Zero)
	require.ErrorAs(t, err, &ve)

	_, err = svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.RequireFromString("-1"))
	require.ErrorAs(t, err, &ve)

	_, err = svc.RequestWithdrawal(ctx, "u1", "BTC", "bogus", decimal.NewFromInt(1))
	require.ErrorAs(t, err, &ve)

	assert.Empty(t, sender.commands(), "no hold published for rejected requests")
}

func TestRejectReleasesHold(t *testing.T) {
	svc, chain, sender, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.NewFromInt(2))
	require.NoError(t, err)

	rejected, err := svc.RejectWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusRejected, rejected.Status)
	assert.Zero(t, chain.sendCount, "rejected withdrawal must never reach the chain")

	cmds := sender.commands()
	require.Len(t, cmds, 2)
	hold := cmds[0].(*matching.WithdrawalCommand)
	credit := cmds[1].(*matching.WithdrawalCommand)
	assert.True(t, hold.Amount.Neg().Equal(credit.Amount), "credit must mirror the hold")
	assert.Equal(t, hold.WithdrawalID, credit.WithdrawalID)
}

func TestApproveOnlyFromPending(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.ApproveWithdrawal(ctx, w.ID)
	require.NoError(t, err)

	_, err = svc.ApproveWithdrawal(ctx, w.ID)
	var conflict *cherrors.StateConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = svc.RejectWithdrawal(ctx, w.ID)
	require.ErrorAs(t, err, &conflict)

	_, err = svc.ApproveWithdrawal(ctx, "missing")
	require.ErrorIs(t, err, cherrors.ErrNotFound)
}

func TestWithdrawalHappyPath(t *testing.T) {
	svc, chain, sender, repo := newTestService(t)
	ctx := context.Background()

	w, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	_, err = svc.ApproveWithdrawal(ctx, w.ID)
	require.NoError(t, err)

	// First pass broadcasts and records the tx id.
	svc.ProcessPendingWithdrawals(ctx)
	stored, err := repo.FindWithdrawalByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusProcessing, stored.Status)
	assert.Equal(t, "sent-tx-1", stored.TxID)
	assert.True(t, chain.sentAmount.Equal(decimal.RequireFromString("0.5")))

	// Second pass sees the confirmation and completes.
	chain.mu.Lock()
	chain.statuses["sent-tx-1"] = blockchain.TxStatusConfirmed
	chain.mu.Unlock()
	svc.ProcessPendingWithdrawals(ctx)

	stored, err = repo.FindWithdrawalByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusCompleted, stored.Status)

	// Only the hold was published; a completed withdrawal keeps it.
	require.Len(t, sender.commands(), 1)
}

func TestBroadcastFailureRefundsHold(t *testing.T) {
	svc, chain, sender, repo := newTestService(t)
	ctx := context.Background()

	chain.sendErr = &cherrors.ExternalServiceError{Service: "bitcoin", Op: "sendtoaddress"}

	w, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.NewFromInt(3))
	require.NoError(t, err)
	_, err = svc.ApproveWithdrawal(ctx, w.ID)
	require.NoError(t, err)

	svc.ProcessPendingWithdrawals(ctx)

	stored, err := repo.FindWithdrawalByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusFailed, stored.Status)

	cmds := sender.commands()
	require.Len(t, cmds, 2)
	credit := cmds[1].(*matching.WithdrawalCommand)
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(3)), "refund %s", credit.Amount)
}

func TestChainFailureAfterBroadcastRefundsHold(t *testing.T) {
	svc, chain, sender, repo := newTestService(t)
	ctx := context.Background()

	w, err := svc.RequestWithdrawal(ctx, "u1", "BTC", "addr-ok", decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = svc.ApproveWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	svc.ProcessPendingWithdrawals(ctx)

	chain.mu.Lock()
	chain.statuses["sent-tx-1"] = blockchain.TxStatusFailed
	chain.mu.Unlock()
	svc.ProcessPendingWithdrawals(ctx)

	stored, err := repo.FindWithdrawalByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusFailed, stored.Status)
	require.Len(t, sender.commands(), 2)
}

func TestDepositScanIsIdempotent(t *testing.T) {
	svc, chain, sender, repo := newTestService(t)
	ctx := context.Background()

	addr, err := svc.GenerateAddress(ctx, "u1", "BTC")
	require.NoError(t, err)

	chain.mu.Lock()
	chain.deposits = []blockchain.Transaction{{
		TxID:          "dep-tx-1",
		Address:       addr.Address,
		Amount:        decimal.RequireFromString("0.25"),
		Confirmations: 2,
		Status:        blockchain.TxStatusConfirmed,
		Time:          time.Now(),
	}}
	chain.mu.Unlock()

	// The same confirmed transaction shows up in three consecutive scans.
	svc.ProcessPendingDeposits(ctx)
	svc.ProcessPendingDeposits(ctx)
	svc.ProcessPendingDeposits(ctx)

	deposits, err := repo.FindDepositsByUser(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, DepositStatusCompleted, deposits[0].Status)

	cmds := sender.commands()
	require.Len(t, cmds, 1, "exactly one credit for one transaction")
	credit := cmds[0].(*matching.DepositCommand)
	assert.Equal(t, "dep-tx-1", credit.TransactionID)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("0.25")))
}

func TestDepositBelowThresholdStaysPending(t *testing.T) {
	svc, chain, sender, repo := newTestService(t)
	ctx := context.Background()

	addr, err := svc.GenerateAddress(ctx, "u1", "BTC")
	require.NoError(t, err)

	chain.mu.Lock()
	chain.deposits = []blockchain.Transaction{{
		TxID:          "dep-tx-2",
		Address:       addr.Address,
		Amount:        decimal.NewFromInt(1),
		Confirmations: 1,
		Status:        blockchain.TxStatusPending,
		Time:          time.Now(),
	}}
	chain.mu.Unlock()

	svc.ProcessPendingDeposits(ctx)

	deposits, err := repo.FindDepositsByUser(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, DepositStatusPending, deposits[0].Status)
	assert.Empty(t, sender.commands())

	// The threshold is reached on a later scan.
	chain.mu.Lock()
	chain.deposits[0].Confirmations = 2
	chain.mu.Unlock()
	svc.ProcessPendingDeposits(ctx)

	deposits, err = repo.FindDepositsByUser(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, DepositStatusCompleted, deposits[0].Status)
	assert.Len(t, sender.commands(), 1)
}

func TestDepositToUnknownAddressSkipped(t *testing.T) {
	svc, chain, sender, _ := newTestService(t)
	ctx := context.Background()

	chain.mu.Lock()
	chain.deposits = []blockchain.Transaction{{
		TxID:          "dep-tx-3",
		Address:       "never-issued",
		Amount:        decimal.NewFromInt(1),
		Confirmations: 5,
		Time:          time.Now(),
	}}
	chain.mu.Unlock()

	svc.ProcessPendingDeposits(ctx)
	assert.Empty(t, sender.commands())
}
