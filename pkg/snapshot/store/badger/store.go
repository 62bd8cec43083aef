// Package badger provides a BadgerDB-backed blob store for persistent
// single-node deployments.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

// Config holds configuration for the BadgerDB blob store.
type Config struct {
	// Path is the directory BadgerDB stores its files in. Empty with
	// InMemory set runs fully in memory.
	Path string

	// InMemory runs BadgerDB without persistence, for tests.
	InMemory bool

	// SyncWrites makes every write durable before returning. Slower but
	// safe against power loss.
	SyncWrites bool
}

// Store is a BadgerDB implementation of store.BlobStore.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// New opens a BadgerDB blob store.
func New(config Config) (*Store, error) {
	opts := badger.DefaultOptions(config.Path).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	logger.Debug("badger blob store opened",
		logger.KeyStoreType, "badger",
		"path", config.Path,
		"in_memory", config.InMemory)

	return &Store{db: db}, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

// WriteBlob stores data under key.
func (s *Store) WriteBlob(ctx context.Context, key string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// ReadBlob returns the blob stored under key.
func (s *Store) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrBlobNotFound
		}
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return data, nil
}

// DeleteBlob removes the blob under key.
func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// DeleteByPrefix removes all blobs whose key starts with prefix.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("badger drop prefix: %w", err)
	}
	return nil
}

// ListByPrefix returns all keys starting with prefix, sorted.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// HealthCheck verifies the database accepts reads.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error { return nil })
	if err != nil {
		return fmt.Errorf("badger health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ensure Store implements store.BlobStore.
var _ store.BlobStore = (*Store)(nil)
