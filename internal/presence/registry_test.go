package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/protocol"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []protocol.Envelope
}

func (f *fakeConn) Send(_ context.Context, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) envelopes() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeConn) countType(eventType string) int {
	n := 0
	for _, env := range f.envelopes() {
		if env.Type == eventType {
			n++
		}
	}
	return n
}

func profile(name string) domain.Profile {
	return domain.Profile{DisplayName: name, Status: domain.StatusOnline}
}

func TestRegisterBroadcastsRoster(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	connA := &fakeConn{}
	connB := &fakeConn{}

	r.Register(ctx, "alice", profile("Alice"), connA)
	r.Register(ctx, "bob", profile("Bob"), connB)

	// Alice receives a roster for her own registration and for Bob's.
	if got := connA.countType(protocol.TypeUserList); got != 2 {
		t.Errorf("Expected 2 roster broadcasts at alice, got %d", got)
	}

	envs := connB.envelopes()
	if len(envs) != 1 {
		t.Fatalf("Expected 1 broadcast at bob, got %d", len(envs))
	}
	var roster []domain.RosterEntry
	if err := protocol.Decode(envs[0], &roster); err != nil {
		t.Fatalf("Failed to decode roster: %v", err)
	}
	if len(roster) != 2 {
		t.Errorf("Expected 2 roster entries, got %d", len(roster))
	}
}

func TestDuplicateRegistrationLastWriterWins(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	first := &fakeConn{}
	second := &fakeConn{}

	r.Register(ctx, "bob", profile("Bob v1"), first)
	r.Register(ctx, "bob", domain.Profile{DisplayName: "Bob v2"}, second)

	conn, ok := r.Resolve("bob")
	if !ok {
		t.Fatal("Expected bob to resolve")
	}
	if conn != Conn(second) {
		t.Error("Expected the newer connection to supersede the old one")
	}

	roster := r.Roster()
	if len(roster) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(roster))
	}
	if roster[0].Profile.DisplayName != "Bob v2" {
		t.Errorf("Expected profile replaced, got %q", roster[0].Profile.DisplayName)
	}
}

func TestReRegisterNewIdentityAbandonsOldOne(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	conn := &fakeConn{}

	r.Register(ctx, "alice", profile("Alice"), conn)
	r.Register(ctx, "alice2", profile("Alice"), conn)

	if _, ok := r.Resolve("alice"); ok {
		t.Error("Expected the abandoned identity to no longer resolve")
	}
	if _, ok := r.Resolve("alice2"); !ok {
		t.Error("Expected the new identity to resolve")
	}

	// The abandoned entry survives but must not advertise online: no
	// live handle carries it anymore.
	for _, entry := range r.Roster() {
		switch entry.UserID {
		case "alice":
			if entry.Status != domain.StatusOffline {
				t.Errorf("Expected abandoned identity offline, got %q", entry.Status)
			}
		case "alice2":
			if entry.Status != domain.StatusOnline {
				t.Errorf("Expected new identity online, got %q", entry.Status)
			}
		}
	}
	if got := r.OnlineCount(); got != 1 {
		t.Errorf("Expected 1 online connection, got %d", got)
	}
}

func TestSupersededConnDisconnectIsNoOp(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	old := &fakeConn{}
	fresh := &fakeConn{}

	r.Register(ctx, "bob", profile("Bob"), old)
	r.Register(ctx, "bob", profile("Bob"), fresh)

	// The stale handle finally closes; bob must stay online on the
	// fresh connection and no offline broadcast may go out.
	if _, ok := r.MarkOffline(ctx, old); ok {
		t.Error("Expected superseded disconnect to be a no-op")
	}
	if _, ok := r.Resolve("bob"); !ok {
		t.Error("Expected bob to still resolve after stale disconnect")
	}
	if got := fresh.countType(protocol.TypeStatusUpdate); got != 0 {
		t.Errorf("Expected no status broadcast, got %d", got)
	}
}

func TestMarkOfflineSingleStatusBroadcast(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	connA := &fakeConn{}
	connB := &fakeConn{}

	r.Register(ctx, "alice", profile("Alice"), connA)
	r.Register(ctx, "bob", profile("Bob"), connB)

	identity, ok := r.MarkOffline(ctx, connB)
	if !ok || identity != "bob" {
		t.Fatalf("Expected bob offline, got %q ok=%v", identity, ok)
	}

	if _, ok := r.Resolve("bob"); ok {
		t.Error("Expected bob to no longer resolve")
	}

	if got := connA.countType(protocol.TypeStatusUpdate); got != 1 {
		t.Fatalf("Expected exactly 1 status broadcast, got %d", got)
	}
	var update protocol.StatusUpdate
	for _, env := range connA.envelopes() {
		if env.Type == protocol.TypeStatusUpdate {
			if err := protocol.Decode(env, &update); err != nil {
				t.Fatalf("Failed to decode status update: %v", err)
			}
		}
	}
	if update.UserID != "bob" || update.Status != domain.StatusOffline {
		t.Errorf("Expected bob offline update, got %+v", update)
	}

	// The entry itself survives with status offline.
	roster := r.Roster()
	for _, entry := range roster {
		if entry.UserID == "bob" && entry.Status != domain.StatusOffline {
			t.Errorf("Expected bob entry offline, got %q", entry.Status)
		}
	}
	if len(roster) != 2 {
		t.Errorf("Expected entries to survive disconnect, got %d", len(roster))
	}
}

func TestAnonymousDisconnectNoOp(t *testing.T) {
	r := NewRegistry()
	registered := &fakeConn{}
	r.Register(context.Background(), "alice", profile("Alice"), registered)

	if _, ok := r.MarkOffline(context.Background(), &fakeConn{}); ok {
		t.Error("Expected anonymous disconnect to be a no-op")
	}
	if got := registered.countType(protocol.TypeStatusUpdate); got != 0 {
		t.Errorf("Expected no broadcast for anonymous disconnect, got %d", got)
	}
}

func TestSendRoster(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	conn := &fakeConn{}
	r.Register(ctx, "alice", profile("Alice"), conn)

	if err := r.SendRoster(ctx, conn); err != nil {
		t.Fatalf("SendRoster failed: %v", err)
	}
	if got := conn.countType(protocol.TypeUserList); got != 2 {
		t.Errorf("Expected register broadcast plus unicast roster, got %d", got)
	}
}

func TestOnlineCount(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	conn := &fakeConn{}

	if got := r.OnlineCount(); got != 0 {
		t.Errorf("Expected 0 online, got %d", got)
	}
	r.Register(ctx, "alice", profile("Alice"), conn)
	if got := r.OnlineCount(); got != 1 {
		t.Errorf("Expected 1 online, got %d", got)
	}
	r.MarkOffline(ctx, conn)
	if got := r.OnlineCount(); got != 0 {
		t.Errorf("Expected 0 online after disconnect, got %d", got)
	}
}
