// Package stream broadcasts alert messages to connected websocket clients.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/posterwatch/posterwatch/internal/app/system"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

var _ system.Service = (*Hub)(nil)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Hub tracks websocket subscribers and fans alert messages out to them.
// A slow client is dropped rather than allowed to stall the rest.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	running bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// mu serializes sends with the close in shutdown so a disconnect
	// during a broadcast cannot hit a closed channel.
	mu     sync.Mutex
	closed bool
}

// trySend queues the message unless the client is closed or its buffer is
// full. full is only meaningful when sent is false.
func (c *client) trySend(msg []byte) (sent, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- msg:
		return true, false
	default:
		return false, true
	}
}

// shutdown closes the send channel exactly once.
func (c *client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// NewHub constructs an alert stream hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("stream")
	}
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) Name() string { return "alert-stream" }

// Start marks the hub as accepting connections.
func (h *Hub) Start(context.Context) error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	return nil
}

// Stop disconnects all clients.
func (h *Hub) Stop(context.Context) error {
	h.mu.Lock()
	h.running = false
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if !running {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast delivers the message to every connected client and reports how
// many received it. It satisfies the checker's Notifier interface so alerts
// flow to the stream alongside Telegram.
func (h *Hub) Broadcast(_ context.Context, text string) (int, error) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	sent := 0
	msg := []byte(text)
	for _, c := range clients {
		ok, full := c.trySend(msg)
		switch {
		case ok:
			sent++
		case full:
			// Buffer full: the client is not keeping up.
			h.drop(c)
		}
	}
	return sent, nil
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.shutdown()
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}
