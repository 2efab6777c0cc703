package cache

import "context"

// MemoryBackend is the default in-process backend: a plain map of encoded
// payloads. All synchronization happens in the Service.
type MemoryBackend struct {
	items map[string][]byte
}

// NewMemoryBackend returns a new instance of MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string][]byte)}
}

// Get returns the payload stored under key, or ErrKeyNotFound.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	payload, ok := b.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return payload, nil
}

// Set stores payload under key.
func (b *MemoryBackend) Set(ctx context.Context, key string, payload []byte) error {
	b.items[key] = payload
	return nil
}

// Delete removes key.
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	delete(b.items, key)
	return nil
}

// Clear removes every key.
func (b *MemoryBackend) Clear(ctx context.Context) error {
	b.items = make(map[string][]byte)
	return nil
}
