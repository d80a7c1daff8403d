package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mgate/internal/broker"
	"mgate/internal/logger"
	"mgate/internal/monitoring"
)

// WebSocketHandler fans broker push streams out to connected clients. One
// relay per stream kind is started lazily when its first client arrives; when
// the broker connection drops, only that stream's clients are disconnected.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	dialer   broker.StreamDialer
	metrics  *monitoring.Metrics

	mu      sync.RWMutex
	clients map[string]*Client
	relays  map[broker.StreamKind]bool
}

// Client is one connected WebSocket consumer.
type Client struct {
	ID      string
	Kind    broker.StreamKind
	Conn    *websocket.Conn
	Send    chan []byte
	handler *WebSocketHandler
}

// NewWebSocketHandler creates the fan-out hub.
func NewWebSocketHandler(dialer broker.StreamDialer, metrics *monitoring.Metrics) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer:  dialer,
		metrics: metrics,
		clients: make(map[string]*Client),
		relays:  make(map[broker.StreamKind]bool),
	}
}

// Ticks streams live tick data.
func (h *WebSocketHandler) Ticks(c *gin.Context) {
	h.stream(c, broker.StreamTicks)
}

// Orders streams order/trade updates.
func (h *WebSocketHandler) Orders(c *gin.Context) {
	h.stream(c, broker.StreamOrders)
}

func (h *WebSocketHandler) stream(c *gin.Context, kind broker.StreamKind) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Kind:    kind,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		handler: h,
	}

	h.registerClient(client)

	// Welcome goes out before the write pump owns the connection.
	welcome := map[string]interface{}{
		"type":      "connected",
		"stream":    string(kind),
		"client_id": client.ID,
		"time":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := conn.WriteJSON(welcome); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to send welcome message")
	}

	h.ensureRelay(kind)

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHandler) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.metrics.SetActiveConnections(float64(len(h.clients)))
}

func (h *WebSocketHandler) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	h.metrics.SetActiveConnections(float64(len(h.clients)))
}

// ensureRelay starts the broker stream relay for kind if not yet running.
func (h *WebSocketHandler) ensureRelay(kind broker.StreamKind) {
	h.mu.Lock()
	if h.relays[kind] {
		h.mu.Unlock()
		return
	}
	h.relays[kind] = true
	h.mu.Unlock()

	stream, err := h.dialer.Dial(context.Background(), kind)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"stream": string(kind),
			"error":  err.Error(),
		}).Error("failed to connect broker stream")
		h.mu.Lock()
		h.relays[kind] = false
		h.mu.Unlock()
		return
	}

	go h.relay(kind, stream)
}

// relay pumps broker push messages into every client of one kind until the
// stream closes, then disconnects those clients.
func (h *WebSocketHandler) relay(kind broker.StreamKind, stream broker.Stream) {
	defer func() {
		stream.Close()
		h.dropKind(kind)
	}()

	for msg := range stream.Messages() {
		h.broadcast(kind, msg)
	}
}

// broadcast fans msg out to every client of one kind. Sends happen under the
// read lock; unregisterClient closes Send under the write lock, so a send can
// never hit a closed channel. Clients with a full buffer are dropped.
func (h *WebSocketHandler) broadcast(kind broker.StreamKind, msg []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients {
		if client.Kind != kind {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logger.WithFields(map[string]interface{}{"client_id": client.ID}).Warn("client send buffer full, dropping connection")
		h.unregisterClient(client)
		client.Conn.Close()
	}
}

// dropKind disconnects all clients of one stream kind and allows the next
// connection to redial the broker.
func (h *WebSocketHandler) dropKind(kind broker.StreamKind) {
	h.mu.Lock()
	h.relays[kind] = false
	var victims []*Client
	for _, client := range h.clients {
		if client.Kind == kind {
			victims = append(victims, client)
		}
	}
	h.mu.Unlock()

	for _, client := range victims {
		client.Conn.Close()
	}
}

// Close disconnects every client. Used at shutdown; the read pumps handle
// unregistration.
func (h *WebSocketHandler) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Conn.Close()
	}
}

// writePump drains the send channel to the connection, pinging on idle.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes (and discards) client frames to detect disconnects.
func (c *Client) readPump() {
	defer func() {
		c.handler.unregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"client_id": c.ID,
					"error":     err.Error(),
				}).Warn("websocket read error")
			}
			return
		}
	}
}
