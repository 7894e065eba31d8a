package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/marketdata"
)

const testSecret = "test-secret"

type stubCandleStore struct {
	candles []*marketdata.Candle
}

func (s *stubCandleStore) FindLatest(context.Context, string, int64) (*marketdata.Candle, error) {
	return nil, nil
}

func (s *stubCandleStore) SaveAll(context.Context, []*marketdata.Candle) error { return nil }

func (s *stubCandleStore) Find(context.Context, string, int64, int) ([]*marketdata.Candle, error) {
	return s.candles, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(zap.NewNop(), testSecret, &stubCandleStore{}, nil, nil)
}

func signToken(t *testing.T, admin bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u1",
		"admin": admin,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWalletRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/wallet/deposits", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/wallet/deposits", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongKey := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	signed, err := wrongKey.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = doRequest(s, http.MethodGet, "/api/v1/wallet/deposits", signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdminClaim(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/wallet/admin/withdrawals/w1/approve", signToken(t, false))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWalletDisabledAnswers503(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/wallet/deposits", signToken(t, false))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/wallet/admin/withdrawals/w1/approve", signToken(t, true))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCandlesRejectsBadGranularity(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/market/candles/BTC-USDT?granularity=7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/market/candles/BTC-USDT?granularity=60", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
