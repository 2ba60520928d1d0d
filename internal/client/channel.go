package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/protocol"
	"github.com/coder/websocket"
)

// Channel is the client side of the bidirectional event channel: it
// dials the server, emits outbound events and dispatches inbound ones
// to the session controller and presence view.
type Channel struct {
	conn    *websocket.Conn
	session *SessionController
	view    *PresenceView

	// OnError is invoked with transport-level failures that the user
	// should see (a blocking notice, not a retry loop).
	OnError func(err error)
}

// Dial connects the channel to the server's websocket endpoint. A
// failure to establish the connection is returned to the caller for a
// user-visible notice; there is no retry loop.
func Dial(ctx context.Context, url string, session *SessionController, view *PresenceView) (*Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	c := &Channel{conn: conn, session: session, view: view}
	// A redial with an established login missed roster broadcasts while
	// disconnected; ask for a fresh one. On the first connect the login
	// has not happened yet and registration brings the roster anyway.
	if session.Identity() != "" {
		if err := c.RequestUserList(ctx); err != nil {
			slog.Debug("roster request after reconnect failed", "error", err)
		}
	}
	return c, nil
}

// Emit sends an envelope to the server.
func (c *Channel) Emit(ctx context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// RequestUserList asks the server for a fresh roster broadcast, used
// after (re)connecting with an established login.
func (c *Channel) RequestUserList(ctx context.Context) error {
	env, err := protocol.Encode(protocol.TypeRequestUserList, nil)
	if err != nil {
		return err
	}
	return c.Emit(ctx, env)
}

// Listen reads and dispatches inbound events until the connection or
// the context ends. Malformed frames are logged and skipped.
func (c *Channel) Listen(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			// A canceled context is a deliberate shutdown, not a
			// transport failure the user needs to see.
			if ctx.Err() == nil && c.OnError != nil {
				c.OnError(err)
			}
			return err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("malformed server frame", "error", err)
			continue
		}
		c.dispatch(ctx, env)
	}
}

// Close shuts the channel down cleanly.
func (c *Channel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Channel) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeUserList:
		var entries []domain.RosterEntry
		if err := protocol.Decode(env, &entries); err != nil {
			slog.Warn("bad roster payload", "error", err)
			return
		}
		c.view.ApplyRoster(entries)

	case protocol.TypePrivateMessage:
		var msg domain.Message
		if err := protocol.Decode(env, &msg); err != nil {
			slog.Warn("bad message payload", "error", err)
			return
		}
		c.session.Receive(ctx, msg)

	case protocol.TypeUserTyping:
		var typing protocol.UserTyping
		if err := protocol.Decode(env, &typing); err != nil {
			slog.Warn("bad typing payload", "error", err)
			return
		}
		c.view.ApplyTyping(typing)

	case protocol.TypeStatusUpdate:
		var status protocol.StatusUpdate
		if err := protocol.Decode(env, &status); err != nil {
			slog.Warn("bad status payload", "error", err)
			return
		}
		c.view.ApplyStatus(status)

	default:
		slog.Debug("ignoring unknown event", "type", env.Type)
	}
}
