package store

import (
	"context"
	"time"
)

// Metrics receives per-operation observations from an instrumented
// store. Implementations must tolerate a nil receiver so callers can
// pass a disabled sink without branching.
type Metrics interface {
	// ObserveOperation records one store operation with its outcome.
	ObserveOperation(op string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by a read or write.
	RecordBytes(op string, n int)
}

// Instrument wraps a BlobStore so every operation is reported to m.
// A nil sink returns the store unwrapped.
func Instrument(s BlobStore, m Metrics) BlobStore {
	if m == nil {
		return s
	}
	return &instrumentedStore{inner: s, met: m}
}

type instrumentedStore struct {
	inner BlobStore
	met   Metrics
}

var _ BlobStore = (*instrumentedStore)(nil)

func (s *instrumentedStore) WriteBlob(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.inner.WriteBlob(ctx, key, data)
	s.met.ObserveOperation("write", time.Since(start), err)
	if err == nil {
		s.met.RecordBytes("write", len(data))
	}
	return err
}

func (s *instrumentedStore) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.inner.ReadBlob(ctx, key)
	s.met.ObserveOperation("read", time.Since(start), err)
	if err == nil {
		s.met.RecordBytes("read", len(data))
	}
	return data, err
}

func (s *instrumentedStore) DeleteBlob(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.DeleteBlob(ctx, key)
	s.met.ObserveOperation("delete", time.Since(start), err)
	return err
}

func (s *instrumentedStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	start := time.Now()
	err := s.inner.DeleteByPrefix(ctx, prefix)
	s.met.ObserveOperation("delete_prefix", time.Since(start), err)
	return err
}

func (s *instrumentedStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.inner.ListByPrefix(ctx, prefix)
	s.met.ObserveOperation("list", time.Since(start), err)
	return keys, err
}

func (s *instrumentedStore) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := s.inner.HealthCheck(ctx)
	s.met.ObserveOperation("health_check", time.Since(start), err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}
