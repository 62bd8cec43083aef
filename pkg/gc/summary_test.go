package gc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittodoc/pkg/summary"
)

// snapshotFromTree stores a summary tree's blobs on the fake runtime and
// returns the base snapshot a loading layer would hand the collector.
// Handles cannot be resolved here; tests that load from a snapshot use
// full trees.
func snapshotFromTree(rt *fakeRuntime, tree *summary.Tree) *BaseSnapshot {
	ids := make(map[string]string)
	for _, key := range tree.Keys() {
		data, ok := tree.Blob(key)
		if !ok {
			continue
		}
		id := "blob-" + key
		rt.mu.Lock()
		rt.blobs[id] = data
		rt.mu.Unlock()
		ids[key] = id
	}
	return &BaseSnapshot{BlobIDs: ids}
}

func TestSummaryRoundTripRestoresState(t *testing.T) {
	ctx := context.Background()

	rt1 := newFakeRuntime()
	c1 := newTestCollector(t, rt1, &fakeReclaimer{}, testConfig())
	rt1.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {"/ds2"},
		"/ds2": {},
		"/ds3": {},
	})
	_, err := c1.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)

	tree, err := c1.Summarize(true, false)
	require.NoError(t, err)
	for _, key := range []string{MetadataBlobKey, TreeBlobKey, TombstoneBlobKey, DeletedBlobKey} {
		assert.True(t, tree.Has(key), "full tree missing %s", key)
		assert.False(t, tree.IsHandle(key), "full tree must not contain handles")
	}

	// A new collector loads the persisted state. The /ds3 stamp from t=0
	// carries over: at t=100 it crosses the sweep timeout without
	// re-waiting.
	rt2 := newFakeRuntime()
	rt2.advance(50)
	rc2 := &fakeReclaimer{}
	c2 := New(rt2, rc2, testConfig())
	t.Cleanup(c2.Close)
	require.NoError(t, c2.InitializeBaseState(ctx, snapshotFromTree(rt2, tree)))

	rt2.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {"/ds2"},
		"/ds2": {},
		"/ds3": {},
	})
	rt2.advance(50)
	_, err = c2.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/ds3"}, c2.Tombstones())
}

func TestVersionMismatchDiscardsAllButDeleted(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()

	ts := int64(0)
	rt.setBlob("b-meta", Metadata{GCVersion: CurrentGCVersion - 1})
	rt.setBlob("b-tree", map[string]NodeData{
		"/ds9": {OutboundRoutes: nil, UnreferencedTimestampMs: &ts},
	})
	rt.setBlob("b-tomb", []string{"/ds9"})
	rt.setBlob("b-del", []string{"/old"})

	c := New(rt, &fakeReclaimer{}, testConfig())
	t.Cleanup(c.Close)
	require.NoError(t, c.InitializeBaseState(ctx, &BaseSnapshot{BlobIDs: map[string]string{
		MetadataBlobKey:  "b-meta",
		TreeBlobKey:      "b-tree",
		TombstoneBlobKey: "b-tomb",
		DeletedBlobKey:   "b-del",
	}}))

	// Deletion is irreversible and survives the schema change; everything
	// else is treated as never-unreferenced.
	assert.True(t, c.IsNodeDeleted("/old"))
	assert.Empty(t, c.Tombstones())
	assert.NoError(t, c.NodeUpdated(ctx, "/ds9", ReasonLoaded, 10000, nil))

	// The next summary is written at the current version.
	tree, err := c.Summarize(true, false)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, tree.Decode(MetadataBlobKey, &meta))
	assert.Equal(t, CurrentGCVersion, meta.GCVersion)
}

func TestMalformedTreeBlobDiscardsNodeState(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()

	rt.setBlob("b-meta", Metadata{GCVersion: CurrentGCVersion})
	rt.blobs["b-tree"] = []byte(`{not json`)
	rt.setBlob("b-tomb", []string{"/ds9"})
	rt.setBlob("b-del", []string{"/old"})

	c := New(rt, &fakeReclaimer{}, testConfig())
	t.Cleanup(c.Close)
	require.NoError(t, c.InitializeBaseState(ctx, &BaseSnapshot{BlobIDs: map[string]string{
		MetadataBlobKey:  "b-meta",
		TreeBlobKey:      "b-tree",
		TombstoneBlobKey: "b-tomb",
		DeletedBlobKey:   "b-del",
	}}), "corrupt state must not fail the load")

	assert.Empty(t, c.Tombstones())
	assert.True(t, c.IsNodeDeleted("/old"))
}

func TestSummarizeReusesUnchangedBlobsAsHandles(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	c := newTestCollector(t, rt, &fakeReclaimer{}, testConfig())

	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {},
		"/ds3": {},
	})
	_, err := c.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)

	// First summary: no acknowledged baseline, everything fresh.
	tree, err := c.Summarize(false, true)
	require.NoError(t, err)
	fresh, reused := tree.Counts()
	assert.Equal(t, 4, fresh)
	assert.Equal(t, 0, reused)

	// Unacked summaries are not a reuse baseline.
	tree, err = c.Summarize(false, true)
	require.NoError(t, err)
	fresh, _ = tree.Counts()
	assert.Equal(t, 4, fresh)

	c.RefreshLatestSummary(AckInfo{SummarySequenceNumber: 7})
	assert.Equal(t, int64(7), c.summaryState.LatestAckSequenceNumber())

	// Nothing changed since the acked summary: every blob is a handle.
	tree, err = c.Summarize(false, true)
	require.NoError(t, err)
	fresh, reused = tree.Counts()
	assert.Equal(t, 0, fresh)
	assert.Equal(t, 4, reused)

	// A graph change dirties only the node table.
	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {"/ds4"},
		"/ds3": {},
		"/ds4": {},
	})
	_, err = c.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)

	tree, err = c.Summarize(false, true)
	require.NoError(t, err)
	assert.False(t, tree.IsHandle(TreeBlobKey))
	assert.True(t, tree.IsHandle(MetadataBlobKey))
	assert.True(t, tree.IsHandle(TombstoneBlobKey))
	assert.True(t, tree.IsHandle(DeletedBlobKey))
}

func TestBaseSnapshotIsReuseBaseline(t *testing.T) {
	ctx := context.Background()

	rt1 := newFakeRuntime()
	c1 := newTestCollector(t, rt1, &fakeReclaimer{}, testConfig())
	rt1.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
	_, err := c1.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)
	tree, err := c1.Summarize(true, false)
	require.NoError(t, err)

	// A collector loaded from that snapshot with no changes summarizes to
	// handles only: the whole GC fragment points back at the base
	// snapshot's blobs.
	rt2 := newFakeRuntime()
	c2 := New(rt2, &fakeReclaimer{}, testConfig())
	t.Cleanup(c2.Close)
	require.NoError(t, c2.InitializeBaseState(ctx, snapshotFromTree(rt2, tree)))

	tree2, err := c2.Summarize(false, true)
	require.NoError(t, err)
	fresh, reused := tree2.Counts()
	assert.Equal(t, 0, fresh)
	assert.Equal(t, 4, reused)
}

func TestSummaryChunksLargeNodeTables(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	cfg := testConfig()
	cfg.MaxNodesPerBlob = 2
	c := newTestCollector(t, rt, &fakeReclaimer{}, cfg)

	rt.setData([]string{"/a"}, map[string][]string{
		"/a": {"/b", "/c", "/d", "/e"},
		"/b": {}, "/c": {}, "/d": {}, "/e": {},
	})
	_, err := c.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)

	tree, err := c.Summarize(true, false)
	require.NoError(t, err)

	chunkKeys := tree.KeysByPrefix(TreeBlobKey)
	assert.Equal(t, []string{"gc_tree_0", "gc_tree_1", "gc_tree_2"}, chunkKeys)

	// Chunks merge back into one table on load.
	rt2 := newFakeRuntime()
	c2 := New(rt2, &fakeReclaimer{}, cfg)
	t.Cleanup(c2.Close)
	require.NoError(t, c2.InitializeBaseState(ctx, snapshotFromTree(rt2, tree)))

	tree2, err := c2.Summarize(true, false)
	require.NoError(t, err)
	assert.Equal(t, chunkKeys, tree2.KeysByPrefix(TreeBlobKey))
}

func TestChunkCountChangeInvalidatesTreeReuse(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	cfg := testConfig()
	cfg.MaxNodesPerBlob = 2
	c := newTestCollector(t, rt, &fakeReclaimer{}, cfg)

	rt.setData([]string{"/a"}, map[string][]string{
		"/a": {"/b", "/c"},
		"/b": {}, "/c": {},
	})
	_, err := c.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)

	_, err = c.Summarize(false, true)
	require.NoError(t, err)
	c.RefreshLatestSummary(AckInfo{SummarySequenceNumber: 1})

	// Two more nodes push the table from two chunks to three: chunk
	// boundaries moved, so no chunk handle is valid even where content
	// overlapped.
	rt.setData([]string{"/a"}, map[string][]string{
		"/a": {"/b", "/c", "/d", "/e"},
		"/b": {}, "/c": {}, "/d": {}, "/e": {},
	})
	_, err = c.CollectGarbage(ctx, RunOptions{})
	require.NoError(t, err)

	tree, err := c.Summarize(false, true)
	require.NoError(t, err)
	for _, key := range tree.KeysByPrefix(TreeBlobKey) {
		assert.False(t, tree.IsHandle(key), "%s must be fresh after a chunk-count change", key)
	}
}
