package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/protocol"
)

// DefaultTypingQuiet is the pause after the last keystroke before a
// "stopped typing" signal is emitted.
const DefaultTypingQuiet = 1000 * time.Millisecond

// ErrEmptyIdentity is returned by Login when the trimmed identity is
// empty. Validation happens locally, before any network call.
var ErrEmptyIdentity = errors.New("client: identity must not be empty")

// Emitter sends envelopes over the channel to the server.
type Emitter interface {
	Emit(ctx context.Context, env protocol.Envelope) error
}

// SessionController holds the current identity, profile and selected
// recipient, and drives the conversation store and the channel.
type SessionController struct {
	emitter Emitter
	history *History

	// OnOutbound is invoked with each locally sent message (optimistic
	// echo; the server never echoes back to the sender).
	OnOutbound func(msg domain.Message)
	// OnInbound is invoked with each received message belonging to the
	// active conversation. Messages for other conversations are stored
	// silently and surface on the next SelectRecipient.
	OnInbound func(msg domain.Message)

	// onRecipientChange is wired by the presence view so a conversation
	// switch clears transient UI state left over from the previous one.
	onRecipientChange func()

	mu               sync.Mutex
	identity         string
	profile          domain.Profile
	recipient        string
	recipientProfile domain.Profile
	hasRecipient     bool

	typingQuiet time.Duration
	typingTimer *time.Timer
	typingLive  bool
}

// NewSessionController creates a session controller over the given
// channel emitter and conversation store.
func NewSessionController(emitter Emitter, history *History) *SessionController {
	return &SessionController{
		emitter:     emitter,
		history:     history,
		typingQuiet: DefaultTypingQuiet,
	}
}

// SetEmitter binds the channel after construction. The channel and the
// session reference each other, so one side has to be wired late.
func (s *SessionController) SetEmitter(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = emitter
}

// SetTypingQuiet overrides the typing debounce quiet period.
func (s *SessionController) SetTypingQuiet(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingQuiet = d
}

func (s *SessionController) currentEmitter() Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter
}

// Identity returns the logged-in identity, empty before Login.
func (s *SessionController) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Recipient returns the currently selected recipient identity and
// whether one is selected.
func (s *SessionController) Recipient() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipient, s.hasRecipient
}

// Login establishes the local identity, restores the conversation
// store and registers with the server. The identity is trimmed; an
// empty result is rejected before any network call.
func (s *SessionController) Login(ctx context.Context, identity string, profile domain.Profile) error {
	identity = domain.TrimIdentity(identity)
	if identity == "" {
		return ErrEmptyIdentity
	}
	profile.Status = domain.StatusOnline

	s.mu.Lock()
	s.identity = identity
	s.profile = profile
	s.mu.Unlock()

	s.history.Restore(ctx)

	env, err := protocol.Encode(protocol.TypeRegister, protocol.Register{
		UserID:  identity,
		Profile: profile,
	})
	if err != nil {
		return err
	}
	return s.currentEmitter().Emit(ctx, env)
}

// SelectRecipient makes identity the active conversation and returns
// its history sorted by ascending timestamp for display. Switching
// conversations clears any typing indicator left by the previous one;
// the superseded sender's stop event would be gated out and never
// hide it otherwise.
func (s *SessionController) SelectRecipient(identity string, profile domain.Profile) []domain.Message {
	s.mu.Lock()
	changed := !s.hasRecipient || s.recipient != identity
	s.recipient = identity
	s.recipientProfile = profile
	s.hasRecipient = true
	key := domain.ConversationKey(s.identity, identity)
	notify := s.onRecipientChange
	s.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
	return s.history.Sorted(key)
}

// Send delivers text to the current recipient: append to the local
// store, emit over the channel, persist, echo locally. Whitespace-only
// text or a missing recipient is a silent no-op.
func (s *SessionController) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if text == "" || !s.hasRecipient {
		s.mu.Unlock()
		return nil
	}
	msg := domain.Message{
		SenderID:      s.identity,
		SenderProfile: s.profile,
		RecipientID:   s.recipient,
		Text:          text,
		Timestamp:     time.Now(),
	}
	key := domain.ConversationKey(s.identity, s.recipient)
	s.mu.Unlock()

	s.history.Append(key, msg)

	env, err := protocol.Encode(protocol.TypePrivateMessage, msg)
	if err != nil {
		return err
	}
	if err := s.currentEmitter().Emit(ctx, env); err != nil {
		return err
	}

	if err := s.history.Persist(ctx); err != nil {
		slog.Warn("failed to persist conversation history", "error", err)
	}
	if s.OnOutbound != nil {
		s.OnOutbound(msg)
	}
	return nil
}

// Receive stores an incoming message and renders it only when it
// belongs to the active conversation.
func (s *SessionController) Receive(ctx context.Context, msg domain.Message) {
	s.mu.Lock()
	key := domain.ConversationKey(s.identity, msg.SenderID)
	active := s.hasRecipient && msg.SenderID == s.recipient
	s.mu.Unlock()

	s.history.Append(key, msg)
	if err := s.history.Persist(ctx); err != nil {
		slog.Warn("failed to persist conversation history", "error", err)
	}

	if active && s.OnInbound != nil {
		s.OnInbound(msg)
	}
}

// NotifyTyping signals that the user is composing. The first call of a
// burst emits typing{isTyping:true}; every call rearms the single
// owned timer, and once input pauses for the quiet period exactly one
// typing{isTyping:false} follows. No-op without a selected recipient.
func (s *SessionController) NotifyTyping(ctx context.Context) {
	s.mu.Lock()
	if !s.hasRecipient {
		s.mu.Unlock()
		return
	}
	start := !s.typingLive
	s.typingLive = true
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	quiet := s.typingQuiet
	s.typingTimer = time.AfterFunc(quiet, s.typingStopped)
	identity, profile, recipient := s.identity, s.profile, s.recipient
	s.mu.Unlock()

	if start {
		s.emitTyping(ctx, identity, profile, recipient, true)
	}
}

func (s *SessionController) typingStopped() {
	s.mu.Lock()
	if !s.typingLive {
		s.mu.Unlock()
		return
	}
	s.typingLive = false
	identity, profile, recipient := s.identity, s.profile, s.recipient
	s.mu.Unlock()

	s.emitTyping(context.Background(), identity, profile, recipient, false)
}

func (s *SessionController) emitTyping(ctx context.Context, identity string, profile domain.Profile, recipient string, isTyping bool) {
	env, err := protocol.Encode(protocol.TypeTyping, protocol.Typing{
		SenderID:      identity,
		SenderProfile: profile,
		RecipientID:   recipient,
		IsTyping:      isTyping,
	})
	if err != nil {
		slog.Error("encode typing", "error", err)
		return
	}
	if err := s.currentEmitter().Emit(ctx, env); err != nil {
		slog.Debug("typing emit failed", "error", err)
	}
}
