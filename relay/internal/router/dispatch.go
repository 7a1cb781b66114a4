package router

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/relay/internal/registry"
)

var (
	// ErrMissingFields is returned when a send request lacks required data.
	ErrMissingFields = errors.New("ruc, phone_number and message are required")
	// ErrNotAdmitted is returned when a status report comes from a
	// connection that is not admitted under the reported tenant.
	ErrNotAdmitted = errors.New("connection not admitted for tenant")
)

// Send relays an outbound notification to the tenant's session. Delivery is
// best effort: delivered is false when no session is admitted for the tenant
// or the write fails. Nothing is queued.
func (r *Router) Send(ruc string, msg protocol.SendWhatsApp) (delivered bool, err error) {
	if strings.TrimSpace(ruc) == "" || msg.PhoneNumber == "" || msg.Message == "" {
		return false, ErrMissingFields
	}

	c, ok := r.registry.FindByTenant(ruc)
	if !ok {
		r.logger.Info("send with no active session", "ruc", ruc)
		return false, nil
	}
	if err := c.Send(protocol.NewEnvelope(protocol.TypeSendWhatsApp, msg)); err != nil {
		r.logger.Warn("send to session failed", "ruc", ruc, "conn_id", c.ID, "error", err)
		return false, nil
	}
	r.logger.Info("send relayed", "ruc", ruc, "conn_id", c.ID)
	return true, nil
}

// Status records and re-broadcasts a status report to the tenant's room.
// Only the connection admitted under ruc may report for it.
func (r *Router) Status(connID, ruc string, status json.RawMessage) error {
	_, admittedAs, ok := r.registry.Lookup(connID)
	if !ok {
		return registry.ErrNotFound
	}
	if admittedAs == "" || admittedAs != ruc {
		return ErrNotAdmitted
	}
	if err := r.registry.SetStatus(connID, status); err != nil {
		return err
	}

	room, ok := r.registry.FindByTenant(ruc)
	if !ok {
		return nil
	}
	return room.Send(protocol.NewEnvelope(protocol.TypeClientStatus, protocol.ClientStatus{
		RUC:    ruc,
		Status: status,
	}))
}
