// Package fs provides a filesystem-backed blob store. Blob keys map to
// file paths under a root directory.
package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

// Config holds configuration for the filesystem blob store.
type Config struct {
	// Root is the directory all blobs are stored under. Created if
	// missing.
	Root string
}

// Store is a filesystem implementation of store.BlobStore. Writes are
// atomic: data goes to a temp file first and is renamed into place.
type Store struct {
	root   string
	mu     sync.RWMutex
	closed bool
}

// New creates a filesystem blob store rooted at config.Root.
func New(config Config) (*Store, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("fs store: root directory not set")
	}
	if err := os.MkdirAll(config.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: config.Root}, nil
}

// path maps a blob key to its file path. Keys use forward slashes
// regardless of platform.
func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// key maps a file path back to its blob key.
func (s *Store) key(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

// WriteBlob stores data under key, creating parent directories as needed.
func (s *Store) WriteBlob(ctx context.Context, key string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename blob into place: %w", err)
	}
	return nil
}

// ReadBlob returns the blob stored under key.
func (s *Store) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrBlobNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// DeleteBlob removes the blob under key.
func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// DeleteByPrefix removes all blobs whose key starts with prefix.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	keys, err := s.ListByPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.DeleteBlob(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ListByPrefix returns all keys starting with prefix, sorted.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".blob-") {
			return nil
		}
		if key := s.key(path); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// HealthCheck verifies the root directory is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("fs store health check failed: %w", err)
	}
	return nil
}

// Close marks the store as closed. Files on disk are kept.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Ensure Store implements store.BlobStore.
var _ store.BlobStore = (*Store)(nil)
