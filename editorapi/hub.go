package editorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ggolani/streamline/editor"
	"github.com/ggolani/streamline/metric"
	"github.com/ggolani/streamline/topology"
)

// Event types pushed to websocket clients
const (
	EventRefresh      = "refresh"
	EventNotification = "notification"
	EventLastChange   = "last_change"
	EventOpenForm     = "open_form"
)

// Event is the envelope of every websocket message
type Event struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type client struct {
	conn        *websocket.Conn
	connectedAt time.Time
	writeMu     sync.Mutex
	closed      atomic.Bool
	closeOnce   sync.Once
}

// Hub pushes refresh requests, notifications and form openings to the
// connected rendering layers.
type Hub struct {
	graph    *topology.Graph
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	writeTimeout time.Duration
	readTimeout  time.Duration
}

var (
	_ editor.Notifier = (*Hub)(nil)
	_ editor.Opener   = (*Hub)(nil)
)

// NewHub creates a hub broadcasting snapshots of graph
func NewHub(graph *topology.Graph, logger *slog.Logger, metrics *metric.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		graph: graph,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:       logger.With("component", "editorapi.hub"),
		metrics:      metrics,
		clients:      make(map[*websocket.Conn]*client),
		writeTimeout: 10 * time.Second,
		readTimeout:  60 * time.Second,
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Refresh returns the callback handed to manager operations. Each call
// pushes the current graph snapshot.
func (h *Hub) Refresh() editor.Refresh {
	return func() {
		h.Broadcast(EventRefresh, h.graph.Snapshot())
	}
}

// Notify implements editor.Notifier
func (h *Hub) Notify(n editor.Notification) {
	h.Broadcast(EventNotification, n)
}

// Open implements editor.Opener by asking clients to show the form
func (h *Hub) Open(form topology.FormDescriptor) {
	h.Broadcast(EventOpenForm, form)
}

// LastChange pushes a new last-change marker
func (h *Hub) LastChange(ts int64) {
	h.Broadcast(EventLastChange, map[string]int64{"lastUpdated": ts})
}

// Broadcast sends an event to every client. Clients that cannot be written
// to are dropped.
func (h *Hub) Broadcast(eventType string, payload any) {
	ev := Event{Type: eventType, ID: uuid.NewString(), Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("Failed to encode event payload", "type", eventType, "error", err)
			return
		}
		ev.Payload = raw
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range targets {
		if c.closed.Load() {
			continue
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if err := h.send(c, data); err != nil {
				h.logger.Debug("Dropping websocket client", "error", err)
				h.remove(c)
			}
		}(c)
	}
	wg.Wait()
}

func (h *Hub) send(c *client, data []byte) error {
	// gorilla/websocket allows one concurrent writer per connection
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ServeHTTP upgrades the request and keeps the client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, connectedAt: time.Now()}
	h.mu.Lock()
	h.clients[conn] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.RecordWebsocketClients(count)
	h.logger.Debug("Websocket client connected", "clients", count)

	// the current state first, so a new client does not wait for a change
	if data, err := h.snapshotEvent(); err == nil {
		if err := h.send(c, data); err != nil {
			h.remove(c)
			return
		}
	}

	go h.read(c)
}

func (h *Hub) snapshotEvent() ([]byte, error) {
	raw, err := json.Marshal(h.graph.Snapshot())
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Type:      EventRefresh,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
	})
}

// read drains client frames so control messages are processed; the
// connection is dropped on the first read error
func (h *Hub) read(c *client) {
	defer h.remove(c)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		h.mu.Lock()
		delete(h.clients, c.conn)
		count := len(h.clients)
		h.mu.Unlock()
		h.metrics.RecordWebsocketClients(count)
		_ = c.conn.Close()
	})
}

// Close disconnects every client
func (h *Hub) Close(ctx context.Context) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("close websocket clients: %w", err)
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		h.remove(c)
	}
	return nil
}
