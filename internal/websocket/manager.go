// Package websocket pushes instance events to WebSocket clients, as an
// alternative to the server-sent event stream.
package websocket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var ErrClosed = errors.New("websocket manager closed")

// Message types sent to clients
const (
	TypeHello = "HELLO"
	TypeEvent = "EVENT"
)

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type         string                `json:"type"`
	ConnectionID string                `json:"connectionId,omitempty"`
	Event        *domain.InstanceEvent `json:"event,omitempty"`
}

// EventSource delivers instance events as they are appended
type EventSource interface {
	Subscribe() (<-chan domain.InstanceEvent, func())
}

// clientConnection represents a connected WebSocket client
type clientConnection struct {
	id   string
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *clientConnection) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Manager handles WebSocket connections subscribed to instance events
type Manager struct {
	source   EventSource
	sanitize func(domain.InstanceEvent) domain.InstanceEvent
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*clientConnection
	closed    bool
}

// NewManager creates a new WebSocket manager. allowedOrigins follows the
// CORS configuration; "*" or an empty list accepts any origin. sanitize
// may be nil.
func NewManager(source EventSource, allowedOrigins []string, sanitize func(domain.InstanceEvent) domain.InstanceEvent, logger *zap.Logger) *Manager {
	if sanitize == nil {
		sanitize = func(ev domain.InstanceEvent) domain.InstanceEvent { return ev }
	}
	return &Manager{
		source:   source,
		sanitize: sanitize,
		logger:   logger.Named("websocket-manager"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		clients: make(map[string]*clientConnection),
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// HandleConnection upgrades the request and streams events until the
// client disconnects
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &clientConnection{
		id:   uuid.New().String(),
		conn: conn,
		done: make(chan struct{}),
	}
	if err := m.add(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = conn.Close()
		return
	}

	events, unsubscribe := m.source.Subscribe()
	m.logger.Debug("WebSocket client connected", zap.String("connection", client.id))

	go m.readLoop(client)
	m.writeLoop(client, events)

	unsubscribe()
	m.remove(client)
	m.logger.Debug("WebSocket client disconnected", zap.String("connection", client.id))
}

// readLoop discards client messages and notices when the client goes away
func (m *Manager) readLoop(c *clientConnection) {
	defer c.close()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (m *Manager) writeLoop(c *clientConnection, events <-chan domain.InstanceEvent) {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := m.write(c, ServerMessage{Type: TypeHello, ConnectionID: c.id}); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ev = m.sanitize(ev)
			if err := m.write(c, ServerMessage{Type: TypeEvent, Event: &ev}); err != nil {
				m.logger.Debug("WebSocket write failed", zap.String("connection", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) write(c *clientConnection, msg ServerMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (m *Manager) add(c *clientConnection) error {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.clients[c.id] = c
	return nil
}

func (m *Manager) remove(c *clientConnection) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	delete(m.clients, c.id)
}

// Clients returns the number of connected clients
func (m *Manager) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Close disconnects all clients and rejects new connections
func (m *Manager) Close() {
	m.clientsMu.Lock()
	m.closed = true
	clients := make([]*clientConnection, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
