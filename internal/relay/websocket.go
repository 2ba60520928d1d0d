package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/presence"
	"github.com/ashureev/relaychat/internal/protocol"
	"github.com/coder/websocket"
)

// WebSocketHandler upgrades HTTP requests to the chat event channel
// and runs the per-connection lifecycle: anonymous until a register
// event arrives, registered until disconnect. All presence mutations
// go through the registry; the handler owns no state beyond its
// connection reference.
type WebSocketHandler struct {
	registry      *presence.Registry
	router        *Router
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new channel handler.
func NewWebSocketHandler(registry *presence.Registry, router *Router, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		registry:      registry,
		router:        router,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsConn adapts websocket.Conn to presence.Conn. Writes use
// context.Background() so in-flight broadcasts are not cut short by
// the originating request's context.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Send(_ context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return w.conn.Write(context.Background(), websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("channel connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	conn := &wsConn{conn: ws}
	// Disconnect of an anonymous connection is a no-op inside the
	// registry; a registered one triggers the offline broadcast.
	defer h.registry.MarkOffline(context.Background(), conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, conn, r.RemoteAddr)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn presence.Conn, remote string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("websocket closed by client", "ip", remote)
			} else {
				slog.Debug("websocket read error", "error", err, "ip", remote)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("malformed envelope", "error", err, "ip", remote)
			continue
		}

		// A malformed payload from one connection must never disturb
		// the others: decode failures are logged and the loop goes on.
		h.handleEvent(ctx, conn, env, remote)
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, conn presence.Conn, env protocol.Envelope, remote string) {
	switch env.Type {
	case protocol.TypeRegister:
		var reg protocol.Register
		if err := protocol.Decode(env, &reg); err != nil {
			slog.Warn("bad register payload", "error", err, "ip", remote)
			return
		}
		if err := reg.Validate(); err != nil {
			slog.Warn("invalid register", "error", err, "ip", remote)
			return
		}
		h.registry.Register(ctx, domain.TrimIdentity(reg.UserID), reg.Profile, conn)

	case protocol.TypePrivateMessage:
		var msg domain.Message
		if err := protocol.Decode(env, &msg); err != nil {
			slog.Warn("bad message payload", "error", err, "ip", remote)
			return
		}
		if err := protocol.ValidateMessage(&msg); err != nil {
			slog.Warn("invalid message", "error", err, "ip", remote)
			return
		}
		h.router.RoutePrivateMessage(ctx, msg.SenderID, msg.SenderProfile, msg.RecipientID, msg.Text)

	case protocol.TypeTyping:
		var typing protocol.Typing
		if err := protocol.Decode(env, &typing); err != nil {
			slog.Warn("bad typing payload", "error", err, "ip", remote)
			return
		}
		if err := typing.Validate(); err != nil {
			slog.Warn("invalid typing", "error", err, "ip", remote)
			return
		}
		h.router.RouteTyping(ctx, typing.SenderID, typing.SenderProfile, typing.RecipientID, typing.IsTyping)

	case protocol.TypeRequestUserList:
		if err := h.registry.SendRoster(ctx, conn); err != nil {
			slog.Debug("roster reply failed", "error", err, "ip", remote)
		}

	default:
		slog.Warn("unknown event type", "type", env.Type, "ip", remote)
	}
}
