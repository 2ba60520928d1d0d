// Package relay routes point-to-point events between live connections
// and manages the websocket connection lifecycle.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/presence"
	"github.com/ashureev/relaychat/internal/protocol"
)

// Router forwards private messages and typing signals to the
// recipient's live connection. Delivery is best-effort at-most-once:
// an offline recipient means the event is dropped: no queuing, no
// error to the sender, no persistence.
type Router struct {
	registry *presence.Registry
}

// NewRouter creates a router backed by the given presence registry.
func NewRouter(registry *presence.Registry) *Router {
	return &Router{registry: registry}
}

// RoutePrivateMessage forwards a text message to recipientID if it has
// a live connection. The forwarded message carries a server-side
// timestamp and no recipientId.
func (r *Router) RoutePrivateMessage(ctx context.Context, senderID string, senderProfile domain.Profile, recipientID, text string) {
	conn, ok := r.registry.Resolve(recipientID)
	if !ok {
		slog.Debug("recipient offline, message dropped", "sender_id", senderID, "recipient_id", recipientID)
		return
	}
	env, err := protocol.Encode(protocol.TypePrivateMessage, domain.Message{
		SenderID:      senderID,
		SenderProfile: senderProfile,
		Text:          text,
		Timestamp:     time.Now(),
	})
	if err != nil {
		slog.Error("encode private message", "error", err)
		return
	}
	if err := conn.Send(ctx, env); err != nil {
		slog.Debug("message delivery failed", "recipient_id", recipientID, "error", err)
	}
}

// RouteTyping forwards a typing signal to recipientID if online,
// with the same drop-if-offline policy as messages.
func (r *Router) RouteTyping(ctx context.Context, senderID string, senderProfile domain.Profile, recipientID string, isTyping bool) {
	conn, ok := r.registry.Resolve(recipientID)
	if !ok {
		slog.Debug("recipient offline, typing dropped", "sender_id", senderID, "recipient_id", recipientID)
		return
	}
	env, err := protocol.Encode(protocol.TypeUserTyping, protocol.UserTyping{
		SenderID:      senderID,
		IsTyping:      isTyping,
		SenderProfile: &senderProfile,
	})
	if err != nil {
		slog.Error("encode typing", "error", err)
		return
	}
	if err := conn.Send(ctx, env); err != nil {
		slog.Debug("typing delivery failed", "recipient_id", recipientID, "error", err)
	}
}
