package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/matching"
)

func dialTestFeed(t *testing.T) (*SessionManager, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := NewSessionManager(zap.NewNop())
	handler := NewHandler(manager, zap.NewNop())

	router := gin.New()
	router.GET("/ws", handler.Serve)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Wait for the session to register before subscribing.
	require.Eventually(t, func() bool { return manager.Count() == 1 },
		time.Second, 10*time.Millisecond)
	return manager, conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestPing(t *testing.T) {
	_, conn := dialTestFeed(t)

	send(t, conn, map[string]any{"type": "ping"})
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestSubscribeReceivesMatches(t *testing.T) {
	manager, conn := dialTestFeed(t)
	consumer := NewConsumer(manager, zap.NewNop())

	send(t, conn, map[string]any{
		"type":        "subscribe",
		"product_ids": []string{"BTC-USDT"},
		"channels":    []string{"match"},
	})
	// Confirm the subscription landed before publishing.
	send(t, conn, map[string]any{"type": "ping"})
	readJSON(t, conn)

	err := consumer.OnOrderMatch(context.Background(), &matching.OrderMatchLog{
		ProductID: "BTC-USDT",
		TradeID:   42,
		Price:     decimal.RequireFromString("50000"),
		Size:      decimal.RequireFromString("0.1"),
		Side:      matching.SideBuy,
		Time:      time.Now().UTC(),
	})
	require.NoError(t, err)

	msg := readJSON(t, conn)
	assert.Equal(t, "match", msg["type"])
	assert.Equal(t, "BTC-USDT", msg["productId"])
	assert.Equal(t, float64(42), msg["tradeId"])
}

func TestUnsubscribedProductFiltered(t *testing.T) {
	manager, conn := dialTestFeed(t)
	consumer := NewConsumer(manager, zap.NewNop())

	send(t, conn, map[string]any{
		"type":        "subscribe",
		"product_ids": []string{"BTC-USDT"},
		"channels":    []string{"match"},
	})
	send(t, conn, map[string]any{"type": "ping"})
	readJSON(t, conn)

	require.NoError(t, consumer.OnOrderMatch(context.Background(), &matching.OrderMatchLog{
		ProductID: "ETH-USDT", TradeID: 1,
	}))
	require.NoError(t, consumer.OnOrderMatch(context.Background(), &matching.OrderMatchLog{
		ProductID: "BTC-USDT", TradeID: 2,
	}))

	// Only the subscribed product gets through.
	msg := readJSON(t, conn)
	assert.Equal(t, "BTC-USDT", msg["productId"])
	assert.Equal(t, float64(2), msg["tradeId"])
}

func TestMalformedRequestKeepsConnection(t *testing.T) {
	_, conn := dialTestFeed(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// The connection survives and still answers pings.
	send(t, conn, map[string]any{"type": "ping"})
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	manager, conn := dialTestFeed(t)
	consumer := NewConsumer(manager, zap.NewNop())

	subscribe := map[string]any{
		"type":        "subscribe",
		"product_ids": []string{"BTC-USDT"},
		"channels":    []string{"ticker"},
	}
	send(t, conn, subscribe)
	send(t, conn, map[string]any{"type": "ping"})
	readJSON(t, conn)

	unsubscribe := map[string]any{
		"type":        "unsubscribe",
		"product_ids": []string{"BTC-USDT"},
		"channels":    []string{"ticker"},
	}
	send(t, conn, unsubscribe)
	send(t, conn, map[string]any{"type": "ping"})
	readJSON(t, conn)

	require.NoError(t, consumer.OnTicker(context.Background(), &matching.TickerLog{
		ProductID: "BTC-USDT", TradeID: 9,
	}))

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no ticker expected after unsubscribe")
}
