// Package ws pushes bus events to the webview over a websocket and feeds
// events emitted by the webview back onto the bus.
//
//	hub := ws.NewHub(event.Default)
//	go hub.Run(ctx)
//	r.Get("/events", "events", hub.Handler())
//
// Frames in both directions are JSON: {"event": "...", "payload": ...}.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/simplepos/shell/pkg/event"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is a single connected webview.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump turns inbound frames into bus events.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("ws: unexpected close", "error", err)
			}
			return
		}
		var ev event.Event
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Name == "" {
			c.hub.log.Debug("ws: dropping malformed frame", "error", err)
			continue
		}
		c.hub.bus.Emit(ev.Name, ev.Payload)
	}
}

func (c *Client) writePump() {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Hub tracks connected clients and broadcasts every bus event to them.
type Hub struct {
	bus        *event.Bus
	log        *slog.Logger
	upgrader   websocket.Upgrader
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub returns a hub bound to bus. Only the given origins may connect;
// an empty list allows any origin.
func NewHub(bus *event.Bus, origins ...string) *Hub {
	h := &Hub{
		bus:        bus,
		log:        logger.Target("ws"),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(origins),
	}
	return h
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // not a browser
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Run forwards bus events to clients until ctx is done, then disconnects
// everyone.
func (h *Hub) Run(ctx context.Context) {
	off := h.bus.Listen(event.All, func(ev event.Event) {
		msg, err := json.Marshal(ev)
		if err != nil {
			h.log.Warn("ws: unencodable event", "event", ev.Name, "error", err)
			return
		}
		select {
		case h.broadcast <- msg:
		default:
			h.log.Warn("ws: broadcast queue full, dropping event", "event", ev.Name)
		}
	})
	defer off()
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
			metrics.EventClients.WithLabelValues("websocket").Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.EventClients.WithLabelValues("websocket").Set(float64(n))
			h.log.Info("ws: client connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.EventClients.WithLabelValues("websocket").Set(float64(n))
			h.log.Info("ws: client disconnected", "total", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades GET /events requests.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("ws: upgrade failed", "error", err)
			return
		}
		c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}
		go c.writePump()
		go c.readPump()
	}
}
