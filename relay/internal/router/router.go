// Package router manages tenant session WebSocket connections: it admits
// sessions into their tenant room and relays events between the HTTP API and
// the connected sessions.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/relay/internal/config"
	"github.com/jsjperu/wha-relay/relay/internal/registry"
	"github.com/jsjperu/wha-relay/relay/internal/store"
)

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Router owns the session WebSocket endpoint and the admission, relay and
// admin operations over the connection registry.
type Router struct {
	store    store.Store
	registry *registry.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	policy          string
	maxMessageSize  int64
	pingInterval    time.Duration
	pongWait        time.Duration
	registerTimeout time.Duration
}

// Options configures the Router.
type Options struct {
	AllowedOrigins  []string // for WebSocket origin check
	Policy          string   // config.PolicyStrict (default) or config.PolicyReplace
	MaxMessageBytes int64    // max WebSocket message size from sessions (default 64KB)
	PingInterval    time.Duration
	RegisterTimeout time.Duration // 0 keeps anonymous connections open
}

// New creates a new Router.
func New(s store.Store, reg *registry.Registry, logger *slog.Logger, opts Options) *Router {
	limit := opts.MaxMessageBytes
	if limit == 0 {
		limit = 64 * 1024 // 64KB default
	}
	ping := opts.PingInterval
	if ping == 0 {
		ping = wsPingInterval
	}
	policy := opts.Policy
	if policy == "" {
		policy = config.PolicyStrict
	}

	return &Router{
		store:           s,
		registry:        reg,
		logger:          logger.With("component", "router"),
		upgrader:        makeUpgrader(opts.AllowedOrigins),
		policy:          policy,
		maxMessageSize:  limit,
		pingInterval:    ping,
		pongWait:        2 * ping,
		registerTimeout: opts.RegisterTimeout,
	}
}

// Registry returns the connection registry the router mutates.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// wsTransport serializes writes to a websocket connection. Nothing is
// written after a force_disconnect frame.
type wsTransport struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	final     bool
	closeOnce sync.Once
}

const writeWait = 10 * time.Second

var errTransportFinal = errors.New("transport is closing")

func (t *wsTransport) Send(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final {
		return errTransportFinal
	}
	if env.Type == protocol.TypeForceDisconnect {
		t.final = true
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and tears down the connection. Safe to
// call more than once.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.mu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// HandleSessionWS handles WebSocket connections from tenant sessions.
func (r *Router) HandleSessionWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("session websocket upgrade failed", "error", err)
		return
	}

	t := &wsTransport{conn: conn}
	connID := uuid.New().String()
	remote := remoteAddr(req)

	c, err := r.registry.Add(connID, remote, time.Now().UTC(), t)
	if err != nil {
		r.logger.Error("register connection failed", "conn_id", connID, "error", err)
		_ = t.Close()
		return
	}
	logger := r.logger.With("conn_id", connID, "remote", remote)
	logger.Info("session connected")

	conn.SetReadLimit(r.maxMessageSize)
	stopKeepalive := startWSKeepalive(conn, &t.mu, r.pingInterval, r.pongWait)

	var stopTimer func() bool
	if r.registerTimeout > 0 {
		timer := time.AfterFunc(r.registerTimeout, func() { r.expireAnonymous(connID) })
		stopTimer = timer.Stop
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("session handler panic", "panic", rec)
		}
		stopKeepalive()
		if stopTimer != nil {
			stopTimer()
		}
		if _, ok := r.registry.Remove(connID); ok {
			logger.Info("session disconnected")
		}
		_ = t.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("session read error", "error", err)
			return
		}

		var env protocol.RawEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logger.Warn("invalid message from session", "error", err)
			continue
		}

		r.handleSessionMessage(req.Context(), c, env, logger)
	}
}

func (r *Router) handleSessionMessage(ctx context.Context, c *registry.Conn, env protocol.RawEnvelope, logger *slog.Logger) {
	switch env.Type {
	case protocol.TypeRegister:
		var reg protocol.Register
		if err := env.Decode(&reg); err != nil {
			logger.Warn("invalid register payload", "error", err)
			r.reject(c, ReasonInvalidCredentials, logger)
			return
		}
		if err := r.Register(ctx, c.ID, reg.RUC, reg.Token); err != nil {
			logger.Info("registration refused", "ruc", reg.RUC, "error", err)
		}

	case protocol.TypeClientStatus:
		var st protocol.ClientStatus
		if err := env.Decode(&st); err != nil {
			logger.Warn("invalid client_status payload", "error", err)
			return
		}
		if err := r.Status(c.ID, st.RUC, st.Status); err != nil {
			logger.Warn("client_status dropped", "ruc", st.RUC, "error", err)
		}

	default:
		logger.Debug("unknown message type from session", "type", env.Type)
		_ = c.Send(protocol.NewEnvelope(protocol.TypeError, protocol.ErrorMessage{
			Error: "unknown message type: " + env.Type,
		}))
	}
}

// expireAnonymous closes a connection that never completed registration.
// Removal and the admission check are one registry operation, so a
// registration that wins the race is left alone.
func (r *Router) expireAnonymous(connID string) {
	c, ok := r.registry.RemoveAnonymous(connID)
	if !ok {
		return
	}
	r.logger.Info("session rejected", "conn_id", connID, "reason", ReasonRegisterTimeout)
	r.kick(c, ReasonRegisterTimeout)
}

// terminate drops the handle, then sends force_disconnect and closes the
// transport.
func (r *Router) terminate(c *registry.Conn, reason string) {
	r.registry.Remove(c.ID)
	r.kick(c, reason)
}

// kick sends force_disconnect and closes a connection already removed from
// the registry. Never call it with a tenant lock held.
func (r *Router) kick(c *registry.Conn, reason string) {
	_ = c.Send(protocol.NewEnvelope(protocol.TypeForceDisconnect, protocol.ForceDisconnect{Reason: reason}))
	_ = c.Close()
}

func remoteAddr(req *http.Request) string {
	addr := req.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
