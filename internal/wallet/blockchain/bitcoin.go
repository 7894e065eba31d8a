package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
)

var btcAddressPattern = regexp.MustCompile(`^(bc1[02-9ac-hj-np-z]{11,87}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})$`)

// BitcoinService talks JSON-RPC to a bitcoind wallet node.
type BitcoinService struct {
	rpcURL   string
	username string
	password string
	minConf  int
	client   *http.Client
	logger   *zap.Logger
	reqID    atomic.Int64
}

func NewBitcoinService(rpcURL, username, password string, minConf int, logger *zap.Logger) *BitcoinService {
	return &BitcoinService{
		rpcURL:   rpcURL,
		username: username,
		password: password,
		minConf:  minConf,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (s *BitcoinService) CurrencyCode() string { return "BTC" }

func (s *BitcoinService) MinConfirmations() int { return s.minConf }

func (s *BitcoinService) GenerateAddress(ctx context.Context, userID string) (string, error) {
	var address string
	if err := s.call(ctx, "getnewaddress", []any{userID}, &address); err != nil {
		return "", err
	}
	return address, nil
}

func (s *BitcoinService) ValidateAddress(address string) bool {
	return btcAddressPattern.MatchString(address)
}

func (s *BitcoinService) TransactionConfirmations(ctx context.Context, txID string) (int, error) {
	var tx struct {
		Confirmations int `json:"confirmations"`
	}
	if err := s.call(ctx, "gettransaction", []any{txID}, &tx); err != nil {
		return 0, err
	}
	return tx.Confirmations, nil
}

func (s *BitcoinService) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	var txID string
	amt, _ := amount.Float64()
	if err := s.call(ctx, "sendtoaddress", []any{address, amt}, &txID); err != nil {
		return "", err
	}
	return txID, nil
}

func (s *BitcoinService) ScanForDeposits(ctx context.Context) ([]Transaction, error) {
	var entries []struct {
		Category      string  `json:"category"`
		Address       string  `json:"address"`
		Amount        float64 `json:"amount"`
		Confirmations int     `json:"confirmations"`
		TxID          string  `json:"txid"`
		Time          int64   `json:"time"`
	}
	// "*" = all accounts, last 100 transactions.
	if err := s.call(ctx, "listtransactions", []any{"*", 100}, &entries); err != nil {
		return nil, err
	}

	txs := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		if e.Category != "receive" {
			continue
		}
		status := TxStatusPending
		if e.Confirmations >= s.minConf {
			status = TxStatusConfirmed
		}
		txs = append(txs, Transaction{
			TxID:          e.TxID,
			Address:       e.Address,
			Amount:        decimal.NewFromFloat(e.Amount),
			Confirmations: e.Confirmations,
			Status:        status,
			Time:          time.Unix(e.Time, 0),
		})
	}
	return txs, nil
}

func (s *BitcoinService) CheckWithdrawalStatus(ctx context.Context, txIDs []string) (map[string]TxStatus, error) {
	statuses := make(map[string]TxStatus, len(txIDs))
	for _, txID := range txIDs {
		conf, err := s.TransactionConfirmations(ctx, txID)
		if err != nil {
			s.logger.Warn("bitcoin withdrawal status lookup failed",
				zap.String("txId", txID), zap.Error(err))
			statuses[txID] = TxStatusUnknown
			continue
		}
		if conf >= s.minConf {
			statuses[txID] = TxStatusConfirmed
		} else {
			statuses[txID] = TxStatusPending
		}
	}
	return statuses, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (s *BitcoinService) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      s.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.username, s.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &cherrors.ExternalServiceError{Service: "bitcoin", Op: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &cherrors.ExternalServiceError{Service: "bitcoin", Op: method, Err: err}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return &cherrors.ExternalServiceError{Service: "bitcoin", Op: method,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	if rpcResp.Error != nil {
		return &cherrors.ExternalServiceError{Service: "bitcoin", Op: method, Err: rpcResp.Error}
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &cherrors.ExternalServiceError{Service: "bitcoin", Op: method,
				Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}
