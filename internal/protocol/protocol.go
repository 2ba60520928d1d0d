// Package protocol defines the JSON event envelope exchanged over the
// websocket channel between clients and the relay server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/relaychat/internal/domain"
)

// Event types carried in the envelope. Client-to-server: register,
// privateMessage, typing, requestUserList. Server-to-client: userList,
// privateMessage, userTyping, userStatusUpdate.
const (
	TypeRegister        = "register"
	TypeUserList        = "userList"
	TypePrivateMessage  = "privateMessage"
	TypeTyping          = "typing"
	TypeUserTyping      = "userTyping"
	TypeStatusUpdate    = "userStatusUpdate"
	TypeRequestUserList = "requestUserList"
)

// Validation errors for inbound payloads. Callers log and drop; a
// malformed payload from one connection must never take down another.
var (
	ErrMissingUserID    = errors.New("protocol: missing userId")
	ErrMissingSender    = errors.New("protocol: missing senderId")
	ErrMissingRecipient = errors.New("protocol: missing recipientId")
	ErrEmptyMessage     = errors.New("protocol: empty message text")
)

// Envelope is the outer frame: a type tag and a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Register is the client-to-server registration payload.
type Register struct {
	UserID  string         `json:"userId"`
	Profile domain.Profile `json:"profile"`
}

// Validate checks the required fields of a registration.
func (r *Register) Validate() error {
	if domain.TrimIdentity(r.UserID) == "" {
		return ErrMissingUserID
	}
	return nil
}

// Typing is the client-to-server typing signal.
type Typing struct {
	SenderID      string         `json:"senderId"`
	SenderProfile domain.Profile `json:"senderProfile"`
	RecipientID   string         `json:"recipientId"`
	IsTyping      bool           `json:"isTyping"`
}

// Validate checks the required fields of a typing signal.
func (t *Typing) Validate() error {
	if t.SenderID == "" {
		return ErrMissingSender
	}
	if t.RecipientID == "" {
		return ErrMissingRecipient
	}
	return nil
}

// UserTyping is the server-to-client typing notification. SenderProfile
// is optional; clients fall back to their cached roster snapshot or the
// raw identity when it is absent.
type UserTyping struct {
	SenderID      string          `json:"senderId"`
	IsTyping      bool            `json:"isTyping"`
	SenderProfile *domain.Profile `json:"senderProfile,omitempty"`
}

// StatusUpdate is the lightweight single-identity presence broadcast
// sent on disconnect instead of a full roster.
type StatusUpdate struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ValidateMessage checks the required fields of an inbound private
// message before routing.
func ValidateMessage(m *domain.Message) error {
	if m.SenderID == "" {
		return ErrMissingSender
	}
	if m.RecipientID == "" {
		return ErrMissingRecipient
	}
	if m.Text == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Encode wraps a payload value in an envelope of the given type.
func Encode(eventType string, v interface{}) (Envelope, error) {
	if v == nil {
		return Envelope{Type: eventType}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: data}, nil
}

// Decode unmarshals the envelope payload into v.
func Decode(env Envelope, v interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
