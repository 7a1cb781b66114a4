// Package registry is the in-memory authority over live relay connections.
//
// It tracks every connected transport by connection id and, once a
// connection has been admitted, the single connection that occupies each
// tenant room. Mutating the room for a tenant is done under LockTenant so
// check-then-act sequences never interleave for the same tenant.
package registry

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jsjperu/wha-relay/pkg/protocol"
)

// AnonymousTenant is reported for connections that have not been admitted.
const AnonymousTenant = "Anónimo"

var (
	// ErrNotFound is returned when the connection is no longer registered.
	ErrNotFound = errors.New("connection not found")
	// ErrDuplicate is returned when a connection id is added twice.
	ErrDuplicate = errors.New("connection already registered")
	// ErrRoomOccupied is returned when a tenant room already has a member.
	ErrRoomOccupied = errors.New("tenant room occupied")
	// ErrAdmitted is returned when an admitted connection is admitted under another tenant.
	ErrAdmitted = errors.New("connection already admitted")
)

// Transport is the write side of a live connection.
type Transport interface {
	Send(env protocol.Envelope) error
	Close() error
}

// Conn is a registered connection. Its identity fields never change.
type Conn struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	transport Transport
}

// Send writes an envelope to the underlying transport.
func (c *Conn) Send(env protocol.Envelope) error {
	return c.transport.Send(env)
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	return c.transport.Close()
}

// Info is a point-in-time snapshot of a connection.
type Info struct {
	ID          string          `json:"id"`
	RUC         string          `json:"ruc"`
	ConnectedAt time.Time       `json:"connectedAt"`
	Address     string          `json:"address"`
	Status      json.RawMessage `json:"status,omitempty"`
}

// Admitted reports whether the snapshot belongs to an admitted connection.
func (i Info) Admitted() bool {
	return i.RUC != "" && i.RUC != AnonymousTenant
}

type entry struct {
	conn   *Conn
	ruc    string
	status json.RawMessage
}

// Registry tracks live connections and tenant rooms.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry // conn_id -> entry
	rooms map[string]string // ruc -> conn_id

	tenants keyedMutex
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		conns:   make(map[string]*entry),
		rooms:   make(map[string]string),
		tenants: keyedMutex{locks: make(map[string]*refMutex)},
	}
}

// Add records a newly connected transport. The connection starts anonymous.
func (r *Registry) Add(id, remoteAddr string, connectedAt time.Time, t Transport) (*Conn, error) {
	c := &Conn{ID: id, RemoteAddr: remoteAddr, ConnectedAt: connectedAt, transport: t}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return nil, ErrDuplicate
	}
	r.conns[id] = &entry{conn: c}
	return c, nil
}

// Admit places the connection into the tenant's room. Callers must hold
// LockTenant(ruc). When the room is taken by another connection Admit fails
// with ErrRoomOccupied, unless replace is set: then the occupant is removed
// from the registry and returned so the caller can notify and close it.
// Admitting a connection again under the same tenant is a no-op.
func (r *Registry) Admit(id, ruc string, replace bool) (evicted *Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.ruc != "" {
		if e.ruc == ruc {
			return nil, nil
		}
		return nil, ErrAdmitted
	}
	if occupantID, ok := r.rooms[ruc]; ok && occupantID != id {
		if !replace {
			return nil, ErrRoomOccupied
		}
		if occ, ok := r.conns[occupantID]; ok {
			evicted = occ.conn
			delete(r.conns, occupantID)
		}
		delete(r.rooms, ruc)
	}
	e.ruc = ruc
	r.rooms[ruc] = id
	return evicted, nil
}

// RemoveAnonymous drops the connection only if it has not been admitted.
// It reports whether the connection was removed.
func (r *Registry) RemoveAnonymous(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok || e.ruc != "" {
		return nil, false
	}
	delete(r.conns, id)
	return e.conn, true
}

// Remove drops the connection and vacates its room. Removing an unknown id
// is a no-op that returns false.
func (r *Registry) Remove(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	if e.ruc != "" && r.rooms[e.ruc] == id {
		delete(r.rooms, e.ruc)
	}
	return e.conn, true
}

// FindByTenant returns the connection occupying the tenant's room.
func (r *Registry) FindByTenant(ruc string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.rooms[ruc]
	if !ok {
		return nil, false
	}
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Lookup returns the connection and the tenant it was admitted under
// (empty when anonymous).
func (r *Registry) Lookup(id string) (*Conn, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, "", false
	}
	return e.conn, e.ruc, true
}

// SetStatus stores the last status reported by an admitted connection.
func (r *Registry) SetStatus(id string, status json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return ErrNotFound
	}
	e.status = append(json.RawMessage(nil), status...)
	return nil
}

// List returns a snapshot of every live connection, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.conns))
	for _, e := range r.conns {
		info := Info{
			ID:          e.conn.ID,
			RUC:         e.ruc,
			ConnectedAt: e.conn.ConnectedAt,
			Address:     e.conn.RemoteAddr,
		}
		if info.RUC == "" {
			info.RUC = AnonymousTenant
		}
		if len(e.status) > 0 {
			info.Status = append(json.RawMessage(nil), e.status...)
		}
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// LockTenant acquires the per-tenant lock and returns its release function.
func (r *Registry) LockTenant(ruc string) (unlock func()) {
	return r.tenants.lock(ruc)
}
