package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/analyzr/internal/api/response"
	"github.com/kiranshivaraju/analyzr/internal/auth"
	"golang.org/x/time/rate"
)

const (
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 << 10
	defaultRelayRate      = 20
	defaultRelayBurst     = 40
)

// Handler upgrades authenticated requests to websockets and relays text messages
// between connections of the same organization.
type Handler struct {
	validator auth.Validator
	hub       *Hub
	registry  Registry
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	pongWait   time.Duration
	pingPeriod time.Duration
	relayRate  rate.Limit
	relayBurst int
}

type HandlerOption func(*Handler)

// WithPingPeriod sets how often connections are pinged and their directory
// lease renewed. It must stay below both the pong wait and the lease.
func WithPingPeriod(d time.Duration) HandlerOption {
	return func(h *Handler) { h.pingPeriod = d }
}

// WithRelayLimit caps how many messages per second one connection may relay.
// Messages over the limit are dropped.
func WithRelayLimit(r rate.Limit, burst int) HandlerOption {
	return func(h *Handler) {
		h.relayRate = r
		h.relayBurst = burst
	}
}

func NewHandler(validator auth.Validator, hub *Hub, registry Registry, allowedOrigins []string, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		validator:  validator,
		hub:        hub,
		registry:   registry,
		logger:     logger,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
		relayRate:  defaultRelayRate,
		relayBurst: defaultRelayBurst,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.validator.Validate(r.Context(), r.URL.Query().Get("authToken"))
	if err != nil {
		if auth.IsCredentialError(err) {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing authToken", nil)
			return
		}
		h.logger.Error("realtime auth failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := h.hub.attach(claims.OrgID, ws)
	log := h.logger.With("connection_id", c.id, "org_id", c.orgID)

	if err := h.registry.Register(r.Context(), c.orgID, c.id); err != nil {
		log.Error("failed to register connection", "error", err)
		h.hub.detach(c.id)
		ws.Close()
		return
	}
	log.Info("websocket connection established")

	done := make(chan struct{})
	go h.keepAlive(c, done)

	defer func() {
		close(done)
		h.hub.detach(c.id)
		ws.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.registry.Unregister(ctx, c.orgID, c.id); err != nil {
			log.Warn("failed to unregister connection", "error", err)
		}
		log.Info("websocket connection closed")
	}()

	ws.SetReadLimit(defaultMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	limiter := rate.NewLimiter(h.relayRate, h.relayBurst)
	for {
		mt, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			log.Warn("relay rate exceeded, dropping message", "bytes", len(msg))
			continue
		}
		log.Debug("websocket message received", "bytes", len(msg))
		h.relay(r.Context(), c.orgID, msg)
	}
}

// relay pushes msg to every live connection of orgID, the sender included.
func (h *Handler) relay(ctx context.Context, orgID string, msg []byte) {
	ids, err := h.registry.ConnectionsFor(ctx, orgID)
	if err != nil {
		h.logger.Error("error sending message", "org_id", orgID, "error", err)
		return
	}
	for _, id := range ids {
		if err := h.hub.Send(ctx, id, msg); err != nil {
			h.logger.Warn("relay to connection failed", "org_id", orgID, "connection_id", id, "error", err)
		}
	}
}

// renew extends the directory lease of a connection that is still alive.
func (h *Handler) renew(c *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), h.hub.writeWait)
	defer cancel()
	if err := h.registry.Register(ctx, c.orgID, c.id); err != nil {
		h.logger.Warn("failed to renew connection lease", "connection_id", c.id, "org_id", c.orgID, "error", err)
	}
}

func (h *Handler) keepAlive(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.hub.writeWait)); err != nil {
				return
			}
			h.renew(c)
		}
	}
}
