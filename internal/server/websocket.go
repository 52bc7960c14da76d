package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
	"github.com/kubilitics/couchdb-mcp/internal/metrics"
)

// WebSocket message types
const (
	MessageTypeAuditEvent = "audit_event"
	MessageTypeConnected  = "connected"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// The feed is one-way; inbound frames are only control traffic
	maxMessageSize = 4 * 1024

	sendBufferSize      = 256
	broadcastBufferSize = 1024
)

var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// WSMessage is one frame of the live audit feed.
type WSMessage struct {
	Type      string       `json:"type"`
	ClientID  string       `json:"clientId,omitempty"`
	Event     *audit.Event `json:"event,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// newUpgrader builds an upgrader that accepts requests without an Origin
// header, any origin when allowed contains "*", and otherwise only the listed
// origins (case-insensitive). A nil list means the local development origins.
func newUpgrader(allowed []string) *websocket.Upgrader {
	if allowed == nil {
		allowed = defaultAllowedOrigins
	}
	wildcard := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			return set[strings.ToLower(origin)]
		},
	}
}

// Hub fans audit events out to connected feed clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        hubCtx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
				default:
					// Client buffer full, drop the client
					h.logger.Warn("dropping slow audit feed client", zap.String("client_id", client.id))
					close(client.send)
					delete(h.clients, client)
					metrics.WebSocketConnections.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WebSocketConnections.Dec()
	}
}

// Stop stops the hub and disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebSocketConnections.Dec()
	}
}

// Publish queues an audit event for every client. It never blocks; when the
// broadcast buffer is full the event is dropped from the feed.
func (h *Hub) Publish(e audit.Event) {
	data, err := json.Marshal(WSMessage{
		Type:      MessageTypeAuditEvent,
		Event:     &e,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("failed to encode audit feed message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		metrics.WebSocketMessagesTotal.WithLabelValues("dropped").Inc()
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams audit events until either side
// goes away.
func (h *Hub) ServeWS(upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(h, conn, uuid.NewString())
		select {
		case h.register <- client:
		case <-h.ctx.Done():
			conn.Close()
			return
		}

		h.logger.Debug("audit feed client connected", zap.String("client_id", client.id))
		go client.writePump()
		client.readPump()
	}
}

// Client is one live audit feed connection.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	id   string
}

func newClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  hub,
		id:   id,
	}
	if hello, err := json.Marshal(WSMessage{Type: MessageTypeConnected, ClientID: id, Timestamp: time.Now().UTC()}); err == nil {
		c.send <- hello
	}
	return c
}

// readPump drains control frames so pongs and close are handled.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
		c.hub.logger.Debug("audit feed client disconnected", zap.String("client_id", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("audit feed read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
	}
}

// writePump sends one JSON message per frame plus periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
