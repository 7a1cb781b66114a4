// Package relayclient connects to a wha-relay server, either as a tenant
// session over WebSocket or as an operator over the HTTP admin API.
package relayclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsjperu/wha-relay/pkg/protocol"
)

// MessageHandler processes events relayed to the session.
type MessageHandler func(env protocol.RawEnvelope) error

// ForcedDisconnectError is returned when the relay terminates the session.
// It is final: reconnecting would only repeat the rejection or evict the
// session that replaced this one.
type ForcedDisconnectError struct {
	Reason string
}

func (e *ForcedDisconnectError) Error() string {
	return "forced disconnect: " + e.Reason
}

// SessionConfig configures a tenant session.
type SessionConfig struct {
	URL               string // ws(s)://host:port/ws
	RUC               string
	Token             string
	ReconnectInterval time.Duration // default 5s
	TLSSkipVerify     bool
}

// Session manages the WebSocket connection of one tenant session.
type Session struct {
	cfg     SessionConfig
	handler MessageHandler
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	connID string
}

// NewSession creates a tenant session client.
func NewSession(cfg SessionConfig, handler MessageHandler, logger *slog.Logger) *Session {
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Session{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "relay-session", "ruc", cfg.RUC),
	}
}

// Run connects, registers and processes events. It reconnects after network
// failures and returns when ctx is canceled or the relay forces a disconnect.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.connectOnce(ctx)

		var forced *ForcedDisconnectError
		if errors.As(err, &forced) {
			s.logger.Warn("session terminated by relay", "reason", forced.Reason)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("connection lost", "error", err, "retry_in", s.cfg.ReconnectInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectInterval):
		}
	}
}

func (s *Session) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if s.cfg.TLSSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(time.Second))
		s.mu.Unlock()
		_ = conn.Close()
	})
	defer func() {
		stop()
		s.mu.Lock()
		s.conn = nil
		s.connID = ""
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if err := s.send(protocol.TypeRegister, protocol.Register{RUC: s.cfg.RUC, Token: s.cfg.Token}); err != nil {
		return fmt.Errorf("send register: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var env protocol.RawEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.logger.Warn("invalid message from relay", "error", err)
			continue
		}

		switch env.Type {
		case protocol.TypeRegistered:
			var ack protocol.Registered
			if err := env.Decode(&ack); err == nil {
				s.mu.Lock()
				s.connID = ack.ConnectionID
				s.mu.Unlock()
			}
			s.logger.Info("registered with relay", "conn_id", ack.ConnectionID)

		case protocol.TypeForceDisconnect:
			var fd protocol.ForceDisconnect
			_ = env.Decode(&fd)
			return &ForcedDisconnectError{Reason: fd.Reason}
		}

		if s.handler != nil {
			if err := s.handler(env); err != nil {
				s.logger.Warn("handler error", "type", env.Type, "error", err)
			}
		}
	}
}

// ConnectionID returns the id assigned by the relay, or "" when not admitted.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// SendStatus reports the session status to the relay. status must marshal to JSON.
func (s *Session) SendStatus(status any) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return s.send(protocol.TypeClientStatus, protocol.ClientStatus{RUC: s.cfg.RUC, Status: raw})
}

func (s *Session) send(msgType string, payload any) error {
	data, err := json.Marshal(protocol.NewEnvelope(msgType, payload))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
