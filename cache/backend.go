// Package cache implements the PACS object cache: a TTL- and
// capacity-bounded key/value store over a pluggable backend, DICOM-specific
// key namespacing, and the specialty-driven prefetch engine.
//
// The Service owns all TTL, LRU and statistics bookkeeping; backends only
// store opaque encoded bytes. Swapping the backend changes persistence and
// latency, never the observable get/set/TTL semantics.
package cache

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by backends for absent keys.
var ErrKeyNotFound = errors.New("cache: key not found")

// Backend is the pluggable storage layer. Implementations store opaque
// byte payloads and need no locking of their own when driven through a
// Service, which serializes access.
type Backend interface {
	// Get returns the payload stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores payload under key, overwriting any previous payload.
	Set(ctx context.Context, key string, payload []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key.
	Clear(ctx context.Context) error
}
