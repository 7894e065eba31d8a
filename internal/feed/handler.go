package feed

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type clientRequest struct {
	Type        string   `json:"type"`
	ProductIDs  []string `json:"product_ids"`
	CurrencyIDs []string `json:"currency_ids"`
	Channels    []string `json:"channels"`
}

// Handler upgrades /ws connections and runs the client read loop. Malformed
// payloads are logged and skipped; the connection stays open.
type Handler struct {
	manager *SessionManager
	logger  *zap.Logger
}

func NewHandler(manager *SessionManager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	session := h.manager.register(conn)
	defer h.manager.remove(session)

	conn.SetReadLimit(16 * 1024)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req clientRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			h.logger.Warn("malformed feed request",
				zap.String("session", session.id), zap.Error(err))
			continue
		}

		ids := append(req.ProductIDs, req.CurrencyIDs...)
		switch req.Type {
		case "subscribe":
			session.subscribe(ids, req.Channels)
		case "unsubscribe":
			session.unsubscribe(ids, req.Channels)
		case "ping":
			session.push(pongPayload())
		default:
			h.logger.Warn("unknown feed request type",
				zap.String("session", session.id), zap.String("type", req.Type))
		}
	}
}

func pongPayload() []byte {
	payload, _ := json.Marshal(map[string]any{
		"type": "pong",
		"time": time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
