package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Type string

const (
	ItemCreated  Type = "item.created"
	ItemUpdated  Type = "item.updated"
	ItemDeleted  Type = "item.deleted"
	ItemSold     Type = "item.sold"
	ItemLowStock Type = "item.low_stock"
)

// Event is one inventory change pushed to connected clients.
type Event struct {
	Type      Type        `json:"type"`
	StockCode string      `json:"stock_code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 512
	DefaultBufferSize = 32
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket clients. A client whose buffer is full is
// disconnected rather than allowed to block publishers.
type Hub struct {
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	bufferSize int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(allowedOrigins []string, bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	h := &Hub{
		logger:     logger.Named("events"),
		bufferSize: bufferSize,
		clients:    make(map[*client]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}

		return false
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event.", zap.String("event_type", string(event.Type)), zap.Error(err))

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Debug("Publishing event.",
		zap.String("event_type", string(event.Type)),
		zap.String("stock_code", event.StockCode),
		zap.Int("subscriber_count", len(h.clients)))

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Client buffer full, disconnecting slow client.", zap.String("event_type", string(event.Type)))
			h.dropLocked(c)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()

	if closed {
		http.Error(w, "Event stream closed", http.StatusServiceUnavailable)

		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection.", zap.Error(err))

		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.bufferSize)}
	if !h.register(c) {
		conn.Close()

		return
	}

	h.logger.Info("Client connected to event stream.", zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)

	h.logger.Info("Client disconnected from event stream.", zap.String("remote_addr", r.RemoteAddr))
}

// readPump only services control frames; client messages are discarded.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Unexpected websocket close.", zap.Error(err))
			}

			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)

				return
			}
		}
	}
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		h.dropLocked(c)
	}
}
