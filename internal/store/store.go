// Package store provides the key-value blob persistence backing the
// client's conversation history.
package store

import "context"

// Blob is a named-blob store with get/set/clear semantics. It is the
// only persistence surface the client relies on; the conversation
// history is serialized into a single blob under a fixed key.
type Blob interface {
	// Get returns the blob stored under key, or (nil, nil) if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores data under key, overwriting any prior value.
	Set(ctx context.Context, key string, data []byte) error

	// Clear removes the blob stored under key. Clearing an absent key
	// is not an error.
	Clear(ctx context.Context, key string) error

	// Close releases the underlying storage.
	Close() error
}
