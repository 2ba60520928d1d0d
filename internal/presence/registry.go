// Package presence is the server-side source of truth for who is
// online and which connection carries them.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/protocol"
)

// Conn is a live connection handle capable of receiving events. The
// relay layer adapts the websocket connection to this interface so the
// registry stays transport-agnostic.
type Conn interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

// Registry maps identities to roster entries and live connections.
// Entries are never deleted: a disconnected identity stays known, with
// its profile and last-seen time, for the life of the process.
//
// All state is guarded by a single mutex. Duplicate registration for
// the same identity is last-writer-wins: the newer connection silently
// supersedes the older handle, which is simply dropped from the index.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*domain.RosterEntry
	conns   map[string]Conn
	// idents is the reverse index (connection -> identity) consulted on
	// disconnect; maintained at register time to avoid a linear scan.
	idents map[Conn]string
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*domain.RosterEntry),
		conns:   make(map[string]Conn),
		idents:  make(map[Conn]string),
	}
}

// Register inserts or replaces the entry for identity with status
// online, binds conn as its live handle, and broadcasts the full
// roster to every connected client.
func (r *Registry) Register(ctx context.Context, identity string, profile domain.Profile, conn Conn) {
	r.mu.Lock()
	profile.Status = domain.StatusOnline
	r.entries[identity] = &domain.RosterEntry{
		UserID:   identity,
		Profile:  profile,
		LastSeen: time.Now(),
		Status:   domain.StatusOnline,
	}
	if old, ok := r.conns[identity]; ok && old != conn {
		// Superseded handle: unbind it so its eventual disconnect does
		// not mark the identity offline.
		delete(r.idents, old)
	}
	// The same conn may re-register under a new identity; drop the old
	// binding and mark the abandoned identity offline, since no live
	// handle carries it anymore. The roster broadcast below announces
	// the change.
	if prev, ok := r.idents[conn]; ok && prev != identity {
		delete(r.conns, prev)
		if entry, ok := r.entries[prev]; ok {
			entry.Status = domain.StatusOffline
			entry.Profile.Status = domain.StatusOffline
			entry.LastSeen = time.Now()
		}
	}
	r.conns[identity] = conn
	r.idents[conn] = identity
	roster, targets := r.rosterLocked()
	r.mu.Unlock()

	slog.Info("user registered", "user_id", identity, "online", len(targets))
	env, err := protocol.Encode(protocol.TypeUserList, roster)
	if err != nil {
		slog.Error("encode roster", "error", err)
		return
	}
	for _, t := range targets {
		if err := t.Send(ctx, env); err != nil {
			slog.Debug("roster broadcast failed", "error", err)
		}
	}
}

// Resolve returns the live connection for identity. Absence is a
// normal result, not an error: routing drops for offline recipients.
func (r *Registry) Resolve(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[identity]
	return conn, ok
}

// MarkOffline handles a disconnect for conn. If the connection was
// registered and still current, the identity is marked offline,
// last-seen is updated, and a single userStatusUpdate is broadcast to
// the remaining connections. Anonymous or superseded connections are a
// no-op.
func (r *Registry) MarkOffline(ctx context.Context, conn Conn) (string, bool) {
	r.mu.Lock()
	identity, ok := r.idents[conn]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.idents, conn)
	delete(r.conns, identity)
	if entry, ok := r.entries[identity]; ok {
		entry.Status = domain.StatusOffline
		entry.Profile.Status = domain.StatusOffline
		entry.LastSeen = time.Now()
	}
	targets := r.targetsLocked()
	r.mu.Unlock()

	slog.Info("user offline", "user_id", identity)
	env, err := protocol.Encode(protocol.TypeStatusUpdate, protocol.StatusUpdate{
		UserID: identity,
		Status: domain.StatusOffline,
	})
	if err != nil {
		slog.Error("encode status update", "error", err)
		return identity, true
	}
	for _, t := range targets {
		if err := t.Send(ctx, env); err != nil {
			slog.Debug("status broadcast failed", "error", err)
		}
	}
	return identity, true
}

// Roster returns a snapshot of all known entries, online and offline.
func (r *Registry) Roster() []domain.RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roster, _ := r.rosterLocked()
	return roster
}

// SendRoster unicasts the current roster to one connection. Serves
// requestUserList on client reconnect.
func (r *Registry) SendRoster(ctx context.Context, conn Conn) error {
	env, err := protocol.Encode(protocol.TypeUserList, r.Roster())
	if err != nil {
		return err
	}
	return conn.Send(ctx, env)
}

// OnlineCount returns the number of live connections.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) rosterLocked() ([]domain.RosterEntry, []Conn) {
	roster := make([]domain.RosterEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		roster = append(roster, *entry)
	}
	return roster, r.targetsLocked()
}

func (r *Registry) targetsLocked() []Conn {
	targets := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	return targets
}
