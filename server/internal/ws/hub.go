package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/driftlog/driftlog/pkg/types"
	"github.com/driftlog/driftlog/server/internal/api"
	"github.com/driftlog/driftlog/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks live-tail clients, pushes each inserted record to the clients
// whose filter matches, and sends a periodic stats heartbeat.
type Hub struct {
	stored   func() int
	interval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	service string // empty matches every record
}

// New creates a Hub. stored is sampled for every heartbeat; interval is the
// heartbeat period.
func New(stored func() int, interval time.Duration) *Hub {
	return &Hub{
		stored:   stored,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Publish queues rec for every matching client. It never blocks: a client
// whose buffer is full is disconnected. Publish is meant to be registered
// with store.WithInsertHook.
func (h *Hub) Publish(rec store.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := gojson.Marshal(types.Event{Event: "log", Data: api.ToEntry(rec)})
	if err != nil {
		slog.Error("ws: encode record", "id", rec.ID, "err", err)
		return
	}
	for c := range h.clients {
		if c.service != "" && c.service != rec.ServiceName {
			continue
		}
		h.deliver(c, data)
	}
}

// Run sends a stats heartbeat every interval. It blocks until ctx is
// cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.heartbeat()
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client goes
// away. The optional service_name query parameter restricts log events to one
// service. A stats event is sent immediately on connect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		service: r.URL.Query().Get("service_name"),
	}
	if data, err := h.statsMessage(); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	slog.Debug("ws: client connected", "remote", r.RemoteAddr, "service_name", c.service)
	go c.writePump()
	c.readPump()
	slog.Debug("ws: client disconnected", "remote", r.RemoteAddr)
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
}

// drop must be called with mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// deliver must be called with mu held.
func (h *Hub) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.drop(c)
	}
}

func (h *Hub) heartbeat() {
	data, err := h.statsMessage()
	if err != nil {
		slog.Error("ws: encode stats", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.deliver(c, data)
	}
}

func (h *Hub) statsMessage() ([]byte, error) {
	n := 0
	if h.stored != nil {
		n = h.stored()
	}
	return gojson.Marshal(types.Event{Event: "stats", Data: types.Stats{Stored: n}})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
}

// writePump forwards queued messages to the connection and sends pings.
// One goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects. Blocks until the
// connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
