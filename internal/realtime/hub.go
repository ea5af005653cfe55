package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/analyzr/internal/telemetry"
)

const defaultWriteWait = 10 * time.Second

var ErrUnknownConnection = errors.New("unknown connection")

// Hub is the in-process registry of attached websocket connections.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*conn
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	writeWait time.Duration
}

type conn struct {
	id    string
	orgID string
	ws    *websocket.Conn

	// gorilla allows one concurrent writer per connection.
	writeMu sync.Mutex
}

func NewHub(logger *slog.Logger, metrics *telemetry.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:     make(map[string]*conn),
		logger:    logger,
		metrics:   metrics,
		writeWait: defaultWriteWait,
	}
}

func (h *Hub) attach(orgID string, ws *websocket.Conn) *conn {
	c := &conn{id: uuid.NewString(), orgID: orgID, ws: ws}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
	return c
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		h.metrics.ConnectionClosed()
	}
}

// Len returns the number of connections attached to this process.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send writes payload as one text frame to connID.
func (h *Hub) Send(ctx context.Context, connID string, payload []byte) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	deadline := time.Now().Add(h.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("send to %s: %w", connID, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send to %s: %w", connID, err)
	}
	return nil
}

// Close sends a going-away frame to every attached connection and closes it.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*conn)
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.ws.Close()
		h.metrics.ConnectionClosed()
	}
	h.logger.Info("realtime hub closed", "connections", len(conns))
}
