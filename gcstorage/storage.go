// Package gcstorage backs the codec with Google Cloud Storage: it serves
// raw DICOM buffers to the prefetch engine, implements a cache backend, and
// signs time-limited URLs for cached pixel blobs.
//
// Bucket layout:
//
//	instances/{sopInstanceUID}.dcm   raw DICOM buffers
//	studies/{studyInstanceUID}.json  manifest: JSON array of SOP instance UIDs
//	cache/{hash}                     cache backend payloads
package gcstorage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

const (
	// only used for the signed url generation
	ServiceAccount = "SERVICE_ACCOUNT"
)

type SignedURL func(bucket, name string, opts *storage.SignedURLOptions) (string, error)

// Client wraps the cloud storage client with the bucket this deployment
// uses. SignedURL is a function field so tests can stub the signer.
type Client struct {
	Bucket    string
	Client    *storage.Client
	SignedURL SignedURL
}

// NewClient returns a Client for the given bucket.
func NewClient(ctx context.Context, bucket string) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %v", err)
	}

	return &Client{
		Bucket:    bucket,
		Client:    client,
		SignedURL: storage.SignedURL,
	}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
