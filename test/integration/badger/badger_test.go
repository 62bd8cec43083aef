//go:build integration

package badger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittodoc/pkg/container"
	"github.com/marmos91/dittodoc/pkg/gc"
	badgerstore "github.com/marmos91/dittodoc/pkg/snapshot/store/badger"
)

func testGCConfig() gc.Config {
	return gc.Config{
		InactiveTimeout:      10 * time.Millisecond,
		SweepTimeout:         100 * time.Millisecond,
		SweepGracePeriod:     50 * time.Millisecond,
		SessionExpiry:        time.Hour,
		SnapshotCacheExpiry:  time.Hour,
		SweepEnabled:         true,
		TombstoneEnforcement: true,
		MaxNodesPerBlob:      gc.DefaultMaxNodesPerBlob,
	}
}

// TestBadgerBlobStore_Integration exercises the blob store operations
// against an on-disk BadgerDB.
func TestBadgerBlobStore_Integration(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "blobs.db")

	store, err := badgerstore.New(badgerstore.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Failed to create badger store: %v", err)
	}
	defer store.Close()

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("Healthcheck failed: %v", err)
	}

	if err := store.WriteBlob(ctx, "containers/doc1/summaries/0/gc_tree", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to write blob: %v", err)
	}
	if err := store.WriteBlob(ctx, "containers/doc1/summaries/0/gc_metadata", []byte(`{"gcVersion":4}`)); err != nil {
		t.Fatalf("Failed to write blob: %v", err)
	}

	data, err := store.ReadBlob(ctx, "containers/doc1/summaries/0/gc_metadata")
	if err != nil {
		t.Fatalf("Failed to read blob: %v", err)
	}
	if string(data) != `{"gcVersion":4}` {
		t.Errorf("Unexpected blob content: %s", data)
	}

	keys, err := store.ListByPrefix(ctx, "containers/doc1/")
	if err != nil {
		t.Fatalf("Failed to list blobs: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}

	if err := store.DeleteByPrefix(ctx, "containers/doc1/"); err != nil {
		t.Fatalf("Failed to delete by prefix: %v", err)
	}
	keys, err = store.ListByPrefix(ctx, "containers/doc1/")
	if err != nil {
		t.Fatalf("Failed to list blobs: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys after prefix delete, got %v", keys)
	}
}

// TestBadgerGCStateSurvivesReopen runs a full GC lifecycle over a
// BadgerDB-backed store and verifies the persisted state survives
// closing and reopening the database.
func TestBadgerGCStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "blobs.db")

	store, err := badgerstore.New(badgerstore.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Failed to create badger store: %v", err)
	}

	session, err := container.NewSession(ctx, "doc1", store, container.SessionOptions{GC: testGCConfig()})
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}

	doc := session.Document()
	mustAdd(t, doc.AddNode("/root", gc.NodeTypeDataStore, nil))
	mustAdd(t, doc.AddRoot("/root"))
	mustAdd(t, doc.AddNode("/orphan", gc.NodeTypeBlob, nil))

	if _, err := session.RunGC(ctx, gc.RunOptions{}); err != nil {
		t.Fatalf("First GC run failed: %v", err)
	}
	doc.AdvanceTime(250)
	stats, err := session.RunGC(ctx, gc.RunOptions{})
	if err != nil {
		t.Fatalf("Second GC run failed: %v", err)
	}
	if stats.Deleted.Sum() != 1 {
		t.Fatalf("Expected 1 deleted node, got %d", stats.Deleted.Sum())
	}

	if _, err := session.Summarize(ctx, true); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	session.Close()
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	// Reopen the database and verify the deletion is still enforced.
	store, err = badgerstore.New(badgerstore.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Failed to reopen badger store: %v", err)
	}
	defer store.Close()

	session, err = container.NewSession(ctx, "doc1", store, container.SessionOptions{GC: testGCConfig()})
	if err != nil {
		t.Fatalf("Failed to reopen session: %v", err)
	}
	defer session.Close()

	if !session.Collector().IsNodeDeleted("/orphan") {
		t.Error("Expected deletion to survive database reopen")
	}
	if session.LatestSequence() != 0 {
		t.Errorf("Expected base sequence 0, got %d", session.LatestSequence())
	}
}

func mustAdd(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Failed to build graph: %v", err)
	}
}
