package client

import (
	"sync"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/protocol"
)

// PresenceView reconciles roster, status and typing events into the
// local active-user cache and drives the UI refresh callbacks. The
// cache is rebuilt wholesale on full roster broadcasts and patched
// incrementally in between, so it may go briefly stale.
type PresenceView struct {
	session *SessionController

	// OnRoster receives the complete roster for a full re-render.
	OnRoster func(entries []domain.RosterEntry)
	// OnStatus receives a single identity's status change for a
	// targeted re-render of that row.
	OnStatus func(userID, status string)
	// OnTyping shows or hides the typing indicator for the active
	// conversation, labeled with the sender's display name.
	OnTyping func(name string, active bool)

	mu     sync.Mutex
	active map[string]domain.RosterEntry
}

// NewPresenceView creates a presence view bound to the session. A
// conversation switch on the session clears the typing indicator.
func NewPresenceView(session *SessionController) *PresenceView {
	v := &PresenceView{
		session: session,
		active:  make(map[string]domain.RosterEntry),
	}
	session.mu.Lock()
	session.onRecipientChange = v.clearTyping
	session.mu.Unlock()
	return v
}

// clearTyping hides the typing indicator unconditionally. Hiding an
// indicator that is not shown is harmless.
func (v *PresenceView) clearTyping() {
	if v.OnTyping != nil {
		v.OnTyping("", false)
	}
}

// ActiveUser returns the cached snapshot for userID, if any.
func (v *PresenceView) ActiveUser(userID string) (domain.RosterEntry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.active[userID]
	return entry, ok
}

// ApplyRoster replaces the active-user cache with the online entries
// of a full roster broadcast, then triggers a full list re-render.
func (v *PresenceView) ApplyRoster(entries []domain.RosterEntry) {
	v.mu.Lock()
	v.active = make(map[string]domain.RosterEntry, len(entries))
	for _, entry := range entries {
		if entry.Online() {
			v.active[entry.UserID] = entry
		}
	}
	v.mu.Unlock()

	if v.OnRoster != nil {
		v.OnRoster(entries)
	}
}

// ApplyStatus patches the cache for one identity and triggers a
// targeted re-render of that identity only.
func (v *PresenceView) ApplyStatus(ev protocol.StatusUpdate) {
	v.mu.Lock()
	if ev.Status == domain.StatusOnline {
		entry := v.active[ev.UserID]
		entry.UserID = ev.UserID
		entry.Status = ev.Status
		v.active[ev.UserID] = entry
	} else {
		delete(v.active, ev.UserID)
	}
	v.mu.Unlock()

	if v.OnStatus != nil {
		v.OnStatus(ev.UserID, ev.Status)
	}
}

// ApplyTyping shows or hides the typing indicator when the event's
// sender is the active conversation. The label falls back from the
// event's inline profile, to the cached snapshot, to the raw identity.
func (v *PresenceView) ApplyTyping(ev protocol.UserTyping) {
	recipient, ok := v.session.Recipient()
	if !ok || ev.SenderID != recipient {
		return
	}

	name := ev.SenderID
	if ev.SenderProfile != nil && ev.SenderProfile.DisplayName != "" {
		name = ev.SenderProfile.DisplayName
		// Keep the cache fresh for later events that omit the profile.
		v.mu.Lock()
		entry := v.active[ev.SenderID]
		entry.UserID = ev.SenderID
		entry.Profile = *ev.SenderProfile
		v.active[ev.SenderID] = entry
		v.mu.Unlock()
	} else if entry, ok := v.ActiveUser(ev.SenderID); ok && entry.Profile.DisplayName != "" {
		name = entry.Profile.DisplayName
	}

	if v.OnTyping != nil {
		v.OnTyping(name, ev.IsTyping)
	}
}
