package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType tags feed messages.
type MessageType string

const VerdictMessage MessageType = "verdict"

// Message is the envelope written to feed clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// VerdictEvent is published once per successful classification.
type VerdictEvent struct {
	RequestID string   `json:"request_id"`
	Food      string   `json:"food"`
	Label     string   `json:"label"`
	RawScore  *float64 `json:"raw_score,omitempty"`
}

// Client is one connected feed subscriber.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// VerdictHub fans verdict events out to WebSocket clients. Slow clients are
// dropped instead of blocking publishers.
type VerdictHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	onCount    func(n int)
}

// NewVerdictHub builds a hub accepting WebSocket upgrades from
// allowedOrigins. Requests without an Origin header are always accepted.
func NewVerdictHub(logger *zap.Logger, allowedOrigins []string) *VerdictHub {
	return &VerdictHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// OnClientCount registers a callback for subscriber count changes. Call it
// before Run.
func (h *VerdictHub) OnClientCount(fn func(n int)) {
	h.onCount = fn
}

// Run serves the hub until ctx is done, then closes every client.
func (h *VerdictHub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.logger.Info("Verdict hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.countChanged(n)
			h.logger.Info("Feed client connected", zap.String("client_id", client.clientID), zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.countChanged(n)
			h.logger.Info("Feed client disconnected", zap.String("client_id", client.clientID), zap.Int("total", n))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.countChanged(n)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.countChanged(0)
			return nil
		}
	}
}

func (h *VerdictHub) countChanged(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

func (h *VerdictHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and attaches a feed client.
func (h *VerdictHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: uuid.NewString(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

// Publish queues a verdict for every connected client. It never blocks.
func (h *VerdictHub) Publish(event VerdictEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	message, err := json.Marshal(Message{
		Type:      VerdictMessage,
		Timestamp: time.Now(),
		Data:      data,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Verdict broadcast queue is full, dropping message")
	}
	return nil
}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket write error", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *VerdictHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	// clients only read; inbound frames are drained to notice disconnects
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}
