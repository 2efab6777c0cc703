package gcstorage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/cache"
)

const cachePrefix = "cache/"

// Ensure backend implements interface.
var _ cache.Backend = (*CacheBackend)(nil)

// CacheBackend stores cache payloads as bucket objects. It trades latency
// for persistence across restarts; the observable get/set/TTL semantics
// stay with the cache service.
type CacheBackend struct {
	client *Client
}

// NewCacheBackend returns a new instance of CacheBackend.
func NewCacheBackend(client *Client) *CacheBackend {
	return &CacheBackend{client: client}
}

// objectName hashes the key so UID dots and search expressions never shape
// object paths.
func objectName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return cachePrefix + hex.EncodeToString(sum[:])
}

// Get returns the payload stored under key, or cache.ErrKeyNotFound.
func (b *CacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Client.Bucket(b.client.Bucket).Object(objectName(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, cache.ErrKeyNotFound
	} else if err != nil {
		return nil, pacscodec.Errorf(pacscodec.ECACHEBACKEND, "opening cache object for %q: %v", key, err)
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, pacscodec.Errorf(pacscodec.ECACHEBACKEND, "reading cache object for %q: %v", key, err)
	}
	return payload, nil
}

// Set stores payload under key.
func (b *CacheBackend) Set(ctx context.Context, key string, payload []byte) error {
	w := b.client.Client.Bucket(b.client.Bucket).Object(objectName(key)).NewWriter(ctx)
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "writing cache object for %q: %v", key, err)
	}
	if err := w.Close(); err != nil {
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "committing cache object for %q: %v", key, err)
	}
	return nil
}

// Delete removes key.
func (b *CacheBackend) Delete(ctx context.Context, key string) error {
	err := b.client.Client.Bucket(b.client.Bucket).Object(objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "deleting cache object for %q: %v", key, err)
	}
	return nil
}

// Clear removes every object under the cache prefix.
func (b *CacheBackend) Clear(ctx context.Context) error {
	bucket := b.client.Client.Bucket(b.client.Bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: cachePrefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "listing cache objects: %v", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return pacscodec.Errorf(pacscodec.ECACHEBACKEND, "clearing cache object %q: %v", attrs.Name, err)
		}
	}
}
