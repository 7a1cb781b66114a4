package router

import (
	"errors"

	"github.com/jsjperu/wha-relay/relay/internal/registry"
)

var (
	// ErrNoSelector is returned when a disconnect names neither a connection nor a tenant.
	ErrNoSelector = errors.New("socket_id or ruc is required")
	// ErrNoMatch is returned when a disconnect matched nothing.
	ErrNoMatch = errors.New("no matching connection")
)

// ListConnections returns a snapshot of every live connection.
func (r *Router) ListConnections() []registry.Info {
	return r.registry.List()
}

// Disconnect force-closes the connection with connID and the session admitted
// for ruc. Either selector may be empty, not both. It returns how many
// connections were closed.
func (r *Router) Disconnect(connID, ruc string) (int, error) {
	if connID == "" && ruc == "" {
		return 0, ErrNoSelector
	}

	count := 0
	if ruc != "" {
		unlock := r.registry.LockTenant(ruc)
		c, ok := r.registry.FindByTenant(ruc)
		if ok {
			_, ok = r.registry.Remove(c.ID)
		}
		unlock()
		if ok {
			r.kick(c, ReasonAdminDisconnect)
			count++
			r.logger.Info("admin disconnected session", "ruc", ruc, "conn_id", c.ID)
		}
	}

	if connID != "" {
		if n := r.disconnectByID(connID); n > 0 {
			count += n
		}
	}

	if count == 0 {
		return 0, ErrNoMatch
	}
	return count, nil
}

// CloseAll force-closes every live connection. Used on shutdown.
func (r *Router) CloseAll() int {
	closed := 0
	for _, info := range r.registry.List() {
		closed += r.closeByID(info.ID, ReasonShutdown)
	}
	return closed
}

func (r *Router) disconnectByID(connID string) int {
	n := r.closeByID(connID, ReasonAdminDisconnect)
	if n > 0 {
		r.logger.Info("admin disconnected connection", "conn_id", connID)
	}
	return n
}

func (r *Router) closeByID(connID, reason string) int {
	_, admittedAs, ok := r.registry.Lookup(connID)
	if !ok {
		return 0
	}
	// Removal serializes with admission for the tenant; the frames go out
	// after the lock is released.
	var unlock func()
	if admittedAs != "" {
		unlock = r.registry.LockTenant(admittedAs)
	}
	c, removed := r.registry.Remove(connID)
	if unlock != nil {
		unlock()
	}
	if !removed {
		return 0
	}
	r.kick(c, reason)
	return 1
}
