package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/protocol"
	"github.com/ashureev/relaychat/internal/store"
)

type fakeEmitter struct {
	mu   sync.Mutex
	sent []protocol.Envelope
}

func (f *fakeEmitter) Emit(_ context.Context, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeEmitter) byType(eventType string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range f.sent {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func newTestSession(t *testing.T) (*SessionController, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	session := NewSessionController(emitter, NewHistory(store.NewMemory()))
	return session, emitter
}

func login(t *testing.T, s *SessionController, id string) {
	t.Helper()
	err := s.Login(context.Background(), id, domain.Profile{DisplayName: id})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
}

func TestLoginEmptyIdentityRejected(t *testing.T) {
	session, emitter := newTestSession(t)

	err := session.Login(context.Background(), "   ", domain.Profile{})
	if err != ErrEmptyIdentity {
		t.Errorf("Expected ErrEmptyIdentity, got %v", err)
	}
	// Rejected locally: nothing may reach the channel.
	if got := len(emitter.byType(protocol.TypeRegister)); got != 0 {
		t.Errorf("Expected no register emission, got %d", got)
	}
}

func TestLoginTrimsAndRegisters(t *testing.T) {
	session, emitter := newTestSession(t)
	login(t, session, "  alice  ")

	if got := session.Identity(); got != "alice" {
		t.Errorf("Expected trimmed identity, got %q", got)
	}
	regs := emitter.byType(protocol.TypeRegister)
	if len(regs) != 1 {
		t.Fatalf("Expected 1 register emission, got %d", len(regs))
	}
	var reg protocol.Register
	if err := protocol.Decode(regs[0], &reg); err != nil {
		t.Fatalf("Failed to decode register: %v", err)
	}
	if reg.UserID != "alice" || reg.Profile.Status != domain.StatusOnline {
		t.Errorf("Expected alice online, got %+v", reg)
	}
}

func TestSendStoresEmitsAndEchoes(t *testing.T) {
	session, emitter := newTestSession(t)
	login(t, session, "alice")
	session.SelectRecipient("bob", domain.Profile{DisplayName: "Bob"})

	var echoed []domain.Message
	session.OnOutbound = func(msg domain.Message) { echoed = append(echoed, msg) }

	if err := session.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Local store has it even though bob may be offline; the server
	// never acknowledges and never echoes.
	msgs := session.history.Get(domain.ConversationKey("alice", "bob"))
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("Expected stored message, got %+v", msgs)
	}

	sent := emitter.byType(protocol.TypePrivateMessage)
	if len(sent) != 1 {
		t.Fatalf("Expected 1 emission, got %d", len(sent))
	}
	var msg domain.Message
	if err := protocol.Decode(sent[0], &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	if msg.RecipientID != "bob" {
		t.Errorf("Expected outbound recipientId, got %q", msg.RecipientID)
	}

	if len(echoed) != 1 {
		t.Errorf("Expected 1 optimistic echo, got %d", len(echoed))
	}
}

func TestSendEmptyTextNoOp(t *testing.T) {
	session, emitter := newTestSession(t)
	login(t, session, "alice")
	session.SelectRecipient("bob", domain.Profile{})

	if err := session.Send(context.Background(), "   \t "); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := len(emitter.byType(protocol.TypePrivateMessage)); got != 0 {
		t.Errorf("Expected no emission for whitespace text, got %d", got)
	}
}

func TestSendWithoutRecipientNoOp(t *testing.T) {
	session, emitter := newTestSession(t)
	login(t, session, "alice")

	if err := session.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := len(emitter.byType(protocol.TypePrivateMessage)); got != 0 {
		t.Errorf("Expected no emission without recipient, got %d", got)
	}
}

func TestReceiveInactiveConversationStoredSilently(t *testing.T) {
	session, _ := newTestSession(t)
	login(t, session, "alice")
	session.SelectRecipient("bob", domain.Profile{})

	rendered := 0
	session.OnInbound = func(domain.Message) { rendered++ }

	// Message from carol, while talking to bob: stored, not rendered.
	session.Receive(context.Background(), message("carol", "psst", time.Now()))
	if rendered != 0 {
		t.Errorf("Expected no render for inactive conversation, got %d", rendered)
	}

	// Selecting carol later surfaces the stored message.
	msgs := session.SelectRecipient("carol", domain.Profile{})
	if len(msgs) != 1 || msgs[0].Text != "psst" {
		t.Errorf("Expected stored carol message on select, got %+v", msgs)
	}

	// Messages from the active conversation render immediately.
	session.Receive(context.Background(), message("carol", "hello", time.Now()))
	if rendered != 1 {
		t.Errorf("Expected 1 render for active conversation, got %d", rendered)
	}
}

func TestReceivePersists(t *testing.T) {
	blob := store.NewMemory()
	emitter := &fakeEmitter{}
	session := NewSessionController(emitter, NewHistory(blob))
	login(t, session, "alice")

	session.Receive(context.Background(), message("bob", "hi", time.Now()))

	// A fresh history restored from the same blob sees the message.
	restored := NewHistory(blob)
	restored.Restore(context.Background())
	if got := restored.Get(domain.ConversationKey("alice", "bob")); len(got) != 1 {
		t.Errorf("Expected receive to persist, got %d messages", len(got))
	}
}

func TestNotifyTypingDebounce(t *testing.T) {
	session, emitter := newTestSession(t)
	login(t, session, "alice")
	session.SelectRecipient("bob", domain.Profile{})
	session.SetTypingQuiet(50 * time.Millisecond)

	// A burst of keystrokes.
	for i := 0; i < 5; i++ {
		session.NotifyTyping(context.Background())
		time.Sleep(5 * time.Millisecond)
	}

	typed := decodeTyping(t, emitter)
	if len(typed) != 1 || !typed[0].IsTyping {
		t.Fatalf("Expected exactly one isTyping:true during the burst, got %+v", typed)
	}

	// After the quiet period, exactly one stop event.
	time.Sleep(150 * time.Millisecond)
	typed = decodeTyping(t, emitter)
	if len(typed) != 2 {
		t.Fatalf("Expected exactly 2 typing emissions, got %d", len(typed))
	}
	if typed[1].IsTyping {
		t.Error("Expected the follow-up emission to be isTyping:false")
	}

	// And no further emissions afterwards.
	time.Sleep(100 * time.Millisecond)
	if got := len(decodeTyping(t, emitter)); got != 2 {
		t.Errorf("Expected no duplicate stop events, got %d emissions", got)
	}
}

func TestNotifyTypingWithoutRecipientNoOp(t *testing.T) {
	session, emitter := newTestSession(t)
	login(t, session, "alice")

	session.NotifyTyping(context.Background())
	if got := len(emitter.byType(protocol.TypeTyping)); got != 0 {
		t.Errorf("Expected no typing emission without recipient, got %d", got)
	}
}

func decodeTyping(t *testing.T, emitter *fakeEmitter) []protocol.Typing {
	t.Helper()
	var out []protocol.Typing
	for _, env := range emitter.byType(protocol.TypeTyping) {
		var typing protocol.Typing
		if err := protocol.Decode(env, &typing); err != nil {
			t.Fatalf("Failed to decode typing: %v", err)
		}
		out = append(out, typing)
	}
	return out
}
