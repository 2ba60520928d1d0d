// Package client implements the chat client core: the conversation
// store, the session controller and the presence view reconciliation.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/store"
)

// HistoryBlobKey is the fixed blob name the whole conversation mapping
// is persisted under.
const HistoryBlobKey = "chatMessages"

// History is the local per-conversation message store. Insertion order
// is not chronological; messages are re-sorted by timestamp at display
// time, not at insert time.
type History struct {
	mu            sync.Mutex
	conversations map[string][]domain.Message
	blob          store.Blob
}

// NewHistory creates a conversation store backed by the given blob
// store.
func NewHistory(blob store.Blob) *History {
	return &History{
		conversations: make(map[string][]domain.Message),
		blob:          blob,
	}
}

// Append pushes msg onto the sequence for key, creating it if absent.
func (h *History) Append(key string, msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conversations[key] = append(h.conversations[key], msg)
}

// Get returns a copy of the sequence for key, empty if absent.
func (h *History) Get(key string) []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.conversations[key]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Sorted returns the conversation for key ordered by ascending
// timestamp, ready for display.
func (h *History) Sorted(key string) []domain.Message {
	out := h.Get(key)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Persist serializes the entire mapping to the blob store, overwriting
// any prior snapshot. Full rewrite on every call, no incremental
// persistence, no compaction.
func (h *History) Persist(ctx context.Context) error {
	h.mu.Lock()
	data, err := json.Marshal(h.conversations)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.blob.Set(ctx, HistoryBlobKey, data)
}

// Restore loads and replaces the in-memory mapping from the blob
// store. An absent or malformed snapshot starts the store empty;
// persistence corruption self-heals and never propagates.
func (h *History) Restore(ctx context.Context) {
	data, err := h.blob.Get(ctx, HistoryBlobKey)
	if err != nil {
		slog.Warn("failed to load conversation history, starting empty", "error", err)
		data = nil
	}

	restored := make(map[string][]domain.Message)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &restored); err != nil {
			slog.Warn("malformed conversation history, starting empty", "error", err)
			restored = make(map[string][]domain.Message)
		}
	}

	h.mu.Lock()
	h.conversations = restored
	h.mu.Unlock()
}
