// Package notify pushes viewer messages and market broadcasts over websockets.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"market_go/internal/domain"
	"market_go/internal/event"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64

	outboundBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Renderer turns a message key and placeholders into text. infra.Locale satisfies it.
type Renderer interface {
	Render(key string, placeholders map[string]string) string
}

// ConnRecorder receives connection gauge updates. infra.Metrics satisfies it.
type ConnRecorder interface {
	IncrementViewers()
	DecrementViewers()
}

// client is one websocket connection of a viewer.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	viewer domain.ViewerID
	send   chan []byte
}

// outbound is a frame routed to one viewer, or to everyone when all is set.
type outbound struct {
	viewer domain.ViewerID
	all    bool
	data   []byte
}

// Hub fans notification frames out to connected viewers. It implements
// domain.NotificationSink; Send and Broadcast never block the caller.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	outbound   chan outbound
	done       chan struct{}
	renderer   Renderer
	metrics    ConnRecorder
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(renderer Renderer, metrics ConnRecorder, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		outbound:   make(chan outbound, outboundBufferSize),
		done:       make(chan struct{}),
		renderer:   renderer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run is the hub's event loop. It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncrementViewers()
			}
			h.logger.Info("Viewer connected", slog.String("viewer", c.viewer.String()), slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			if ok {
				if h.metrics != nil {
					h.metrics.DecrementViewers()
				}
				h.logger.Info("Viewer disconnected", slog.String("viewer", c.viewer.String()), slog.Int("total_clients", h.clientCount()))
			}

		case msg := <-h.outbound:
			h.mu.RLock()
			for c := range h.clients {
				if !msg.all && c.viewer != msg.viewer {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("Dropping frame for slow viewer", slog.String("viewer", c.viewer.String()))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Send delivers a rendered message to every connection of viewer.
func (h *Hub) Send(viewer domain.ViewerID, key string, placeholders map[string]string) {
	ev := event.NewMessage(key, h.renderer.Render(key, placeholders), placeholders, time.Now())
	h.enqueue(outbound{viewer: viewer}, ev)
}

// Broadcast delivers a rendered message to every connected viewer.
func (h *Hub) Broadcast(key string, placeholders map[string]string) {
	ev := event.NewMessage(key, h.renderer.Render(key, placeholders), placeholders, time.Now())
	if key == domain.MsgMarketRefreshed {
		ev.Type = event.TypeMarketRefreshed
	}
	h.enqueue(outbound{all: true}, ev)
}

// Push delivers a structured payload to viewer.
func (h *Hub) Push(viewer domain.ViewerID, t event.Type, payload any) {
	h.enqueue(outbound{viewer: viewer}, event.NewPayload(t, payload, time.Now()))
}

func (h *Hub) enqueue(msg outbound, ev *event.Envelope) {
	data, err := event.Encode(ev)
	if err != nil {
		h.logger.Error("Failed to encode notification", slog.Any("error", err))
		return
	}
	msg.data = data
	select {
	case h.outbound <- msg:
	default:
		h.logger.Warn("Notification queue full, dropping frame")
	}
}

// HandleWS upgrades the request and registers the viewer named by the
// X-Viewer-ID header or the viewer query parameter.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("X-Viewer-ID")
	if raw == "" {
		raw = r.URL.Query().Get("viewer")
	}
	viewer, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "viewer id must be a UUID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		viewer: viewer,
		send:   make(chan []byte, sendBufferSize),
	}
	c.sendInitialStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Connected returns how many connections viewer has open.
func (h *Hub) Connected(viewer domain.ViewerID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.viewer == viewer {
			n++
		}
	}
	return n
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) sendInitialStatus() {
	msg, err := json.Marshal(event.Envelope{
		Type:    event.TypeStatus,
		Payload: map[string]any{"viewer": c.viewer.String(), "connected": true},
		At:      time.Now(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump drains the connection so pongs and close frames are processed.
// Viewers do not send commands over the socket.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Unexpected websocket close", slog.Any("error", err))
			}
			return
		}
	}
}

// writePump writes queued frames as text messages and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
