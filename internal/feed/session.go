// Package feed pushes live market events to websocket clients. Clients
// subscribe to (product or currency, channel) pairs; the consumer fans
// decoded log records out to matching subscriptions.
package feed

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// sendBuffer is the per-session outbound queue. A client that cannot drain
// it is disconnected rather than allowed to backpressure the fanout.
const sendBuffer = 256

// Session is one websocket client and its subscription set.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	subs map[string]struct{}
}

// subKey identifies one subscription: "{productId|currencyId}:{channel}".
func subKey(id, channel string) string { return id + ":" + channel }

func (s *Session) subscribe(ids, channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for _, ch := range channels {
			s.subs[subKey(id, ch)] = struct{}{}
		}
	}
}

func (s *Session) unsubscribe(ids, channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for _, ch := range channels {
			delete(s.subs, subKey(id, ch))
		}
	}
}

func (s *Session) subscribed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[key]
	return ok
}

// push queues payload for delivery, reporting false when the session is too
// far behind to keep.
func (s *Session) push(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	defer s.conn.Close()
	for payload := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// SessionManager tracks connected sessions and routes broadcasts to the
// subscribed subset.
type SessionManager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (m *SessionManager) register(conn *websocket.Conn) *Session {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]struct{}),
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	go s.writePump()
	return s
}

func (m *SessionManager) remove(s *Session) {
	m.mu.Lock()
	if _, ok := m.sessions[s.id]; ok {
		delete(m.sessions, s.id)
		close(s.send)
	}
	m.mu.Unlock()
}

// Broadcast delivers v to every session subscribed to (id, channel). Slow
// sessions are dropped.
func (m *SessionManager) Broadcast(id, channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("marshal feed message", zap.Error(err))
		return
	}
	key := subKey(id, channel)

	m.mu.RLock()
	var slow []*Session
	for _, s := range m.sessions {
		if !s.subscribed(key) {
			continue
		}
		if !s.push(payload) {
			slow = append(slow, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range slow {
		m.logger.Warn("dropping slow feed session", zap.String("session", s.id))
		m.remove(s)
	}
}

// Count returns the number of connected sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
