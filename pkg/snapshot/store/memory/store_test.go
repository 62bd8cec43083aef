package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

func TestWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.WriteBlob(ctx, "a/b", []byte("data")); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}

	data, err := s.ReadBlob(ctx, "a/b")
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("ReadBlob = %q, want %q", data, "data")
	}

	if err := s.DeleteBlob(ctx, "a/b"); err != nil {
		t.Fatalf("DeleteBlob failed: %v", err)
	}
	if _, err := s.ReadBlob(ctx, "a/b"); !errors.Is(err, store.ErrBlobNotFound) {
		t.Errorf("ReadBlob after delete = %v, want ErrBlobNotFound", err)
	}
}

func TestReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.WriteBlob(ctx, "k", []byte("abc")); err != nil {
		t.Fatal(err)
	}

	data, _ := s.ReadBlob(ctx, "k")
	data[0] = 'x'

	again, _ := s.ReadBlob(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored blob mutated through returned slice: %q", again)
	}
}

func TestPrefixOperations(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, key := range []string{"c/1/a", "c/1/b", "c/2/a", "other"} {
		if err := s.WriteBlob(ctx, key, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.ListByPrefix(ctx, "c/1/")
	if err != nil {
		t.Fatalf("ListByPrefix failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "c/1/a" || keys[1] != "c/1/b" {
		t.Errorf("ListByPrefix = %v, want [c/1/a c/1/b]", keys)
	}

	if err := s.DeleteByPrefix(ctx, "c/"); err != nil {
		t.Fatalf("DeleteByPrefix failed: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len after DeleteByPrefix = %d, want 1", s.Len())
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.WriteBlob(ctx, "k", nil); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("WriteBlob = %v, want ErrStoreClosed", err)
	}
	if _, err := s.ReadBlob(ctx, "k"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("ReadBlob = %v, want ErrStoreClosed", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("HealthCheck = %v, want ErrStoreClosed", err)
	}
}

func TestReadAndParse(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := store.WriteJSON(ctx, s, "meta", map[string]int{"gcVersion": 4}); err != nil {
		t.Fatal(err)
	}

	var got map[string]int
	if err := store.ReadAndParse(ctx, s, "meta", &got); err != nil {
		t.Fatalf("ReadAndParse failed: %v", err)
	}
	if got["gcVersion"] != 4 {
		t.Errorf("decoded = %v, want gcVersion 4", got)
	}
}
