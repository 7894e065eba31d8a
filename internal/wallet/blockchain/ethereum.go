package blockchain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
)

var weiPerEther = decimal.New(1, 18)

// maxScanSpan caps how many blocks one deposit scan walks so a node that
// fell behind does not stall the reconciliation cycle.
const maxScanSpan = 50

// EthereumService fronts a geth-style node whose keystore manages both the
// deposit accounts and the payout account. Signing stays on the node; this
// process only submits eth_sendTransaction.
type EthereumService struct {
	rpcClient *rpc.Client
	client    *ethclient.Client
	account   common.Address
	minConf   int
	logger    *zap.Logger

	mu          sync.Mutex
	lastScanned uint64
}

func NewEthereumService(ctx context.Context, rpcURL, account string, minConf int, logger *zap.Logger) (*EthereumService, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &cherrors.ExternalServiceError{Service: "ethereum", Op: "dial", Err: err}
	}
	return &EthereumService{
		rpcClient: rpcClient,
		client:    ethclient.NewClient(rpcClient),
		account:   common.HexToAddress(account),
		minConf:   minConf,
		logger:    logger,
	}, nil
}

func (s *EthereumService) CurrencyCode() string { return "ETH" }

func (s *EthereumService) MinConfirmations() int { return s.minConf }

func (s *EthereumService) GenerateAddress(ctx context.Context, userID string) (string, error) {
	var address string
	if err := s.rpcClient.CallContext(ctx, &address, "personal_newAccount", ""); err != nil {
		return "", &cherrors.ExternalServiceError{Service: "ethereum", Op: "personal_newAccount", Err: err}
	}
	return strings.ToLower(address), nil
}

func (s *EthereumService) ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

func (s *EthereumService) TransactionConfirmations(ctx context.Context, txID string) (int, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, nil
		}
		return 0, &cherrors.ExternalServiceError{Service: "ethereum", Op: "receipt", Err: err}
	}
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, &cherrors.ExternalServiceError{Service: "ethereum", Op: "blockNumber", Err: err}
	}
	return int(head - receipt.BlockNumber.Uint64() + 1), nil
}

func (s *EthereumService) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	wei := amount.Mul(weiPerEther).BigInt()
	args := map[string]any{
		"from":  s.account,
		"to":    common.HexToAddress(address),
		"value": (*hexutil.Big)(wei),
	}
	var txHash common.Hash
	if err := s.rpcClient.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return "", &cherrors.ExternalServiceError{Service: "ethereum", Op: "eth_sendTransaction", Err: err}
	}
	return txHash.Hex(), nil
}

func (s *EthereumService) ScanForDeposits(ctx context.Context) ([]Transaction, error) {
	watched, err := s.nodeAccounts(ctx)
	if err != nil {
		return nil, err
	}
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, &cherrors.ExternalServiceError{Service: "ethereum", Op: "blockNumber", Err: err}
	}

	s.mu.Lock()
	from := s.lastScanned + 1
	if s.lastScanned == 0 && head > uint64(s.minConf) {
		from = head - uint64(s.minConf)
	}
	if head >= from+maxScanSpan {
		from = head - maxScanSpan + 1
	}
	s.lastScanned = head
	s.mu.Unlock()

	var txs []Transaction
	for n := from; n <= head; n++ {
		block, err := s.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, &cherrors.ExternalServiceError{Service: "ethereum", Op: "blockByNumber", Err: err}
		}
		for _, tx := range block.Transactions() {
			to := tx.To()
			if to == nil {
				continue
			}
			if _, ok := watched[*to]; !ok {
				continue
			}
			conf := int(head - n + 1)
			status := TxStatusPending
			if conf >= s.minConf {
				status = TxStatusConfirmed
			}
			txs = append(txs, Transaction{
				TxID:          tx.Hash().Hex(),
				Address:       strings.ToLower(to.Hex()),
				Amount:        decimal.NewFromBigInt(tx.Value(), 0).Div(weiPerEther),
				Confirmations: conf,
				Status:        status,
				Time:          time.Unix(int64(block.Time()), 0),
			})
		}
	}
	return txs, nil
}

func (s *EthereumService) CheckWithdrawalStatus(ctx context.Context, txIDs []string) (map[string]TxStatus, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, &cherrors.ExternalServiceError{Service: "ethereum", Op: "blockNumber", Err: err}
	}

	statuses := make(map[string]TxStatus, len(txIDs))
	for _, txID := range txIDs {
		receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txID))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				statuses[txID] = TxStatusPending
				continue
			}
			s.logger.Warn("ethereum withdrawal status lookup failed",
				zap.String("txId", txID), zap.Error(err))
			statuses[txID] = TxStatusUnknown
			continue
		}
		if receipt.Status == types.ReceiptStatusFailed {
			statuses[txID] = TxStatusFailed
			continue
		}
		if int(head-receipt.BlockNumber.Uint64()+1) >= s.minConf {
			statuses[txID] = TxStatusConfirmed
		} else {
			statuses[txID] = TxStatusPending
		}
	}
	return statuses, nil
}

func (s *EthereumService) nodeAccounts(ctx context.Context) (map[common.Address]struct{}, error) {
	var accounts []common.Address
	if err := s.rpcClient.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, &cherrors.ExternalServiceError{Service: "ethereum", Op: "eth_accounts", Err: err}
	}
	watched := make(map[common.Address]struct{}, len(accounts))
	for _, a := range accounts {
		if a != s.account {
			watched[a] = struct{}{}
		}
	}
	return watched, nil
}
