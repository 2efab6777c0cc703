package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// FilesystemBackend persists payloads as one file per key under a root
// directory. Keys are hashed into file names so arbitrary key characters
// (UIDs with dots, search expressions) never reach the filesystem. Any I/O
// failure surfaces as ECACHEBACKEND; the Service recovers by treating the
// entry as absent.
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend creates the root directory if needed.
func NewFilesystemBackend(root string) (*FilesystemBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, pacscodec.Errorf(pacscodec.ECACHEBACKEND, "creating cache dir %q: %v", root, err)
	}
	return &FilesystemBackend{root: root}, nil
}

func (b *FilesystemBackend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.root, hex.EncodeToString(sum[:])+".cache")
}

// Get returns the payload stored under key, or ErrKeyNotFound.
func (b *FilesystemBackend) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	} else if err != nil {
		return nil, pacscodec.Errorf(pacscodec.ECACHEBACKEND, "reading cache entry %q: %v", key, err)
	}
	return payload, nil
}

// Set stores payload under key.
func (b *FilesystemBackend) Set(ctx context.Context, key string, payload []byte) error {
	// Write-then-rename so a concurrent reader never sees a partial entry.
	tmp := fmt.Sprintf("%s.tmp%d", b.path(key), os.Getpid())
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "writing cache entry %q: %v", key, err)
	}
	if err := os.Rename(tmp, b.path(key)); err != nil {
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "committing cache entry %q: %v", key, err)
	}
	return nil
}

// Delete removes key.
func (b *FilesystemBackend) Delete(ctx context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "deleting cache entry %q: %v", key, err)
	}
	return nil
}

// Clear removes every entry file under the root.
func (b *FilesystemBackend) Clear(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(b.root, "*.cache"))
	if err != nil {
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "listing cache dir %q: %v", b.root, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "clearing cache entry %q: %v", m, err)
		}
	}
	return nil
}
