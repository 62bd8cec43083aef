// Package store defines the blob store interface used for snapshot and
// summary persistence, with backends for memory, filesystem, BadgerDB and
// S3 under subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Standard store errors.
var (
	// ErrBlobNotFound is returned when a requested blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrStoreClosed is returned on any operation after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// BlobStore is the persistence surface for summary blobs. Keys are
// slash-separated paths (e.g. "containers/<id>/summaries/<seq>/gc_tree").
//
// All implementations must be safe for concurrent use.
type BlobStore interface {
	// WriteBlob stores data under key, overwriting any existing blob.
	WriteBlob(ctx context.Context, key string, data []byte) error

	// ReadBlob returns the blob stored under key, or ErrBlobNotFound.
	ReadBlob(ctx context.Context, key string) ([]byte, error)

	// DeleteBlob removes the blob under key. Deleting a missing blob is
	// not an error.
	DeleteBlob(ctx context.Context, key string) error

	// DeleteByPrefix removes all blobs whose key starts with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error

	// ListByPrefix returns all keys starting with prefix, sorted.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// HealthCheck verifies the backing storage is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources. Operations after Close return
	// ErrStoreClosed.
	Close() error
}

// ReadAndParse reads the blob under key and JSON-decodes it into v.
func ReadAndParse(ctx context.Context, s BlobStore, key string, v any) error {
	data, err := s.ReadBlob(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode blob %q: %w", key, err)
	}
	return nil
}

// WriteJSON JSON-encodes v and stores it under key.
func WriteJSON(ctx context.Context, s BlobStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode blob %q: %w", key, err)
	}
	return s.WriteBlob(ctx, key, data)
}
