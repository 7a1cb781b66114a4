package router

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/relay/internal/config"
	"github.com/jsjperu/wha-relay/relay/internal/registry"
	"github.com/jsjperu/wha-relay/relay/internal/store"
)

// Reasons carried by force_disconnect. Sessions show them to the operator.
const (
	ReasonInvalidCredentials = "Credenciales inválidas para este RUC."
	ReasonSessionActive      = "Ya existe una sesión de WhatsApp activa con este mismo RUC."
	ReasonReplaced           = "Se ha iniciado sesión de WhatsApp en otra computadora con este mismo RUC."
	ReasonAdminDisconnect    = "Sesión finalizada por el administrador."
	ReasonRegisterTimeout    = "Tiempo de registro agotado."
	ReasonStoreUnavailable   = "Servicio de autenticación no disponible."
	ReasonShutdown           = "El servidor se está reiniciando."
)

var (
	// ErrUnknownTenant is returned when the tenant has no stored token.
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrTokenMismatch is returned when the presented token does not match.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrSessionActive is returned under the strict policy when the tenant
	// room is already occupied.
	ErrSessionActive = errors.New("tenant already has an active session")
	// ErrAlreadyRegistered is returned when an admitted connection registers again.
	ErrAlreadyRegistered = errors.New("connection already registered")
)

// Register runs admission for the connection. On any failure the connection
// receives force_disconnect and is closed, except for ErrAlreadyRegistered
// which leaves the existing admission untouched.
func (r *Router) Register(ctx context.Context, connID, ruc, token string) error {
	c, current, ok := r.registry.Lookup(connID)
	if !ok {
		return registry.ErrNotFound
	}
	logger := r.logger.With("conn_id", connID, "ruc", ruc)
	if current != "" {
		logger.Warn("ignoring register on admitted connection", "admitted_as", current)
		return ErrAlreadyRegistered
	}

	// Credentials are checked before taking the tenant lock so store I/O
	// never serializes unrelated work for the tenant.
	if err := r.authenticate(ctx, ruc, token); err != nil {
		reason := ReasonInvalidCredentials
		if !errors.Is(err, ErrUnknownTenant) && !errors.Is(err, ErrTokenMismatch) {
			logger.Error("token lookup failed", "error", err)
			reason = ReasonStoreUnavailable
		}
		r.reject(c, reason, logger)
		return err
	}

	// Only registry state changes under the tenant lock. Frames to peers are
	// written after release so a stalled socket cannot hold the tenant.
	unlock := r.registry.LockTenant(ruc)
	evicted, err := r.registry.Admit(connID, ruc, r.policy == config.PolicyReplace)
	unlock()

	switch {
	case errors.Is(err, registry.ErrRoomOccupied):
		r.reject(c, ReasonSessionActive, logger)
		return ErrSessionActive
	case err != nil:
		// Dropped or expired while we were authenticating.
		return fmt.Errorf("admit %s: %w", connID, err)
	}

	if err := c.Send(protocol.NewEnvelope(protocol.TypeRegistered, protocol.Registered{
		ConnectionID: connID,
		RUC:          ruc,
	})); err != nil {
		logger.Debug("registered ack failed", "error", err)
	}
	if evicted != nil {
		logger.Warn("duplicate session, evicted previous connection", "previous_conn_id", evicted.ID)
		r.kick(evicted, ReasonReplaced)
	}
	logger.Info("session admitted")
	return nil
}

func (r *Router) authenticate(ctx context.Context, ruc, token string) error {
	if strings.TrimSpace(ruc) == "" {
		return ErrUnknownTenant
	}
	stored, err := r.store.GetToken(ctx, ruc)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownTenant
	}
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// reject terminates a connection that failed admission.
func (r *Router) reject(c *registry.Conn, reason string, logger *slog.Logger) {
	logger.Info("session rejected", "reason", reason)
	r.terminate(c, reason)
}
