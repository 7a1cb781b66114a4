// Package protocol defines the wire messages exchanged between the relay and
// tenant sessions over the persistent WebSocket channel.
//
// Every frame is a JSON envelope whose "type" field selects the payload shape.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the top-level wire format for all messages.
type Envelope struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload,omitempty"`
}

// RawEnvelope is the receive-side form of Envelope. The payload is kept as
// the exact bytes received so opaque fields can be forwarded unchanged.
type RawEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (e RawEnvelope) Decode(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}

// --- Message type constants ---

const (
	// Session → relay.
	TypeRegister     = "register"
	TypeClientStatus = "client_status"

	// Relay → session.
	TypeRegistered      = "registered"
	TypeSendWhatsApp    = "enviar_whatsapp"
	TypeForceDisconnect = "force_disconnect"
	TypeError           = "error"
)

// Register is the first message a session sends to claim its tenant room.
type Register struct {
	RUC   string `json:"ruc"`
	Token string `json:"token"`
}

// Registered acknowledges a successful admission.
type Registered struct {
	ConnectionID string `json:"connection_id"`
	RUC          string `json:"ruc"`
}

// ForceDisconnect is sent right before the relay closes a connection.
type ForceDisconnect struct {
	Reason string `json:"reason"`
}

// SendWhatsApp is the outbound notification relayed to the tenant session.
type SendWhatsApp struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	ImagePath   string `json:"image_path,omitempty"`
}

// ClientStatus is reported by a session and re-broadcast to its room.
// Status is opaque to the relay and forwarded verbatim.
type ClientStatus struct {
	RUC    string          `json:"ruc"`
	Status json.RawMessage `json:"status"`
}

// ErrorMessage reports a non-fatal protocol problem to the session.
type ErrorMessage struct {
	Error string `json:"error"`
}

// NewEnvelope wraps a payload with the current timestamp.
func NewEnvelope(msgType string, payload any) Envelope {
	return Envelope{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
