// Package domain contains core domain types for the relay.
package domain

import (
	"strings"
	"time"
)

// Presence status values carried on profiles and roster entries.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Profile is the user-supplied identity card attached at registration.
// It is mutable only by re-registering.
type Profile struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarColor string `json:"avatarColor,omitempty"`
	Status      string `json:"status"`
}

// RosterEntry is the wire snapshot of a known identity: its profile,
// current status and the last time it was seen. Entries survive
// disconnects for the life of the server process.
type RosterEntry struct {
	UserID   string    `json:"userId"`
	Profile  Profile   `json:"profile"`
	LastSeen time.Time `json:"lastSeen"`
	Status   string    `json:"status"`
}

// Online reports whether the entry currently has a live connection.
func (e *RosterEntry) Online() bool {
	return e.Status == StatusOnline
}

// DisplayName returns the profile display name, falling back to the
// raw identity when the profile carries none.
func (e *RosterEntry) DisplayName() string {
	if e.Profile.DisplayName != "" {
		return e.Profile.DisplayName
	}
	return e.UserID
}

// Message is a point-to-point text message. RecipientID is set only on
// the outbound (client to server) leg; the server strips it when
// forwarding. Messages are never mutated after creation.
type Message struct {
	SenderID      string    `json:"senderId"`
	SenderProfile Profile   `json:"senderProfile"`
	RecipientID   string    `json:"recipientId,omitempty"`
	Text          string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConversationKey derives the deterministic key for a two-party
// conversation. The pair is unordered: both participants compute the
// same key regardless of who is sender and who is recipient.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// TrimIdentity normalizes a user-supplied identity. An empty result
// means the identity is invalid.
func TrimIdentity(id string) string {
	return strings.TrimSpace(id)
}
