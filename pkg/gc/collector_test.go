package gc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime drives the collector with scripted reference data and a
// manually advanced reference clock.
type fakeRuntime struct {
	mu      sync.Mutex
	data    *GCData
	dataErr error
	nowMs   int64
	blobs   map[string][]byte

	closed   bool
	closeErr error
	closedCh chan struct{}
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		data:     &GCData{Nodes: map[string][]string{}},
		blobs:    map[string][]byte{},
		closedCh: make(chan struct{}),
	}
}

func (f *fakeRuntime) setData(roots []string, nodes map[string][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = &GCData{Nodes: nodes, Roots: roots}
}

func (f *fakeRuntime) advance(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowMs += ms
}

func (f *fakeRuntime) setBlob(id string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[id] = data
}

func (f *fakeRuntime) GetGCData(ctx context.Context, fullGC bool) (*GCData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dataErr != nil {
		return nil, f.dataErr
	}
	return f.data, nil
}

func (f *fakeRuntime) GetNodeType(path string) NodeType {
	if strings.Contains(path, "blob") {
		return NodeTypeBlob
	}
	return NodeTypeDataStore
}

func (f *fakeRuntime) CurrentReferenceTimestampMs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowMs
}

func (f *fakeRuntime) ReadAndParseBlob(ctx context.Context, id string, v any) error {
	f.mu.Lock()
	data, ok := f.blobs[id]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("blob %q not found", id)
	}
	return json.Unmarshal(data, v)
}

func (f *fakeRuntime) GetNodePackagePath(ctx context.Context, path string) ([]string, error) {
	return []string{"app", path}, nil
}

func (f *fakeRuntime) Close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeErr = err
	close(f.closedCh)
}

// fakeReclaimer records the route updates and deletes the collector
// requests.
type fakeReclaimer struct {
	used       []string
	unused     []string
	tombstoned []string
	deleted    []string

	deleteErr error
}

func (f *fakeReclaimer) UpdateUsedRoutes(routes []string)   { f.used = routes }
func (f *fakeReclaimer) UpdateUnusedRoutes(routes []string) { f.unused = routes }
func (f *fakeReclaimer) UpdateTombstonedRoutes(routes []string) {
	f.tombstoned = append(f.tombstoned, routes...)
}

func (f *fakeReclaimer) DeleteSweepReadyNodes(ctx context.Context, routes []string) ([]string, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, routes...)
	return routes, nil
}

func testConfig() Config {
	return Config{
		InactiveTimeout:     10 * time.Millisecond,
		SweepTimeout:        100 * time.Millisecond,
		SweepGracePeriod:    50 * time.Millisecond,
		SessionExpiry:       time.Hour,
		SnapshotCacheExpiry: time.Hour,
		MaxNodesPerBlob:     DefaultMaxNodesPerBlob,
	}
}

func newTestCollector(t *testing.T, rt *fakeRuntime, rc *fakeReclaimer, cfg Config, opts ...Option) *Collector {
	t.Helper()
	c := New(rt, rc, cfg, opts...)
	t.Cleanup(c.Close)
	require.NoError(t, c.InitializeBaseState(context.Background(), nil))
	return c
}

func TestCollectGarbageRequiresInitialization(t *testing.T) {
	c := New(newFakeRuntime(), &fakeReclaimer{}, testConfig())
	defer c.Close()

	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = c.Summarize(false, false)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestUnreferencedNodeProgressesToDeletion(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	cfg := testConfig()
	cfg.SweepEnabled = true
	c := newTestCollector(t, rt, rc, cfg)

	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {"/ds2"},
		"/ds2": {},
		"/ds3": {},
	})

	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total.Sum())
	assert.Equal(t, 1, stats.Unreferenced.Sum())
	assert.Equal(t, 1, stats.Updated.Sum())
	assert.Equal(t, []string{"/ds3"}, rc.unused)
	assert.ElementsMatch(t, []string{"/ds1", "/ds2"}, rc.used)
	assert.Empty(t, c.Tombstones())

	// Past the inactive timeout: advisory only, no tombstone yet.
	rt.advance(50)
	stats, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Updated.Sum())
	assert.Empty(t, c.Tombstones())

	// Past the sweep timeout: tombstoned but not yet deleted.
	rt.advance(60)
	stats, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tombstoned.Sum())
	assert.Equal(t, []string{"/ds3"}, c.Tombstones())
	assert.Equal(t, []string{"/ds3"}, rc.tombstoned)
	assert.Equal(t, 0, stats.Deleted.Sum())

	// Past the grace period: swept.
	rt.advance(50)
	stats, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted.Sum())
	assert.Equal(t, []string{"/ds3"}, rc.deleted)
	assert.True(t, c.IsNodeDeleted("/ds3"))
	assert.Empty(t, c.Tombstones())

	// The runtime may still report the node until the delete propagates;
	// it must not be counted or deleted again.
	stats, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total.Sum())
	assert.Equal(t, 0, stats.Deleted.Sum())
	assert.Len(t, rc.deleted, 1)
	assert.Equal(t, 1, stats.LifetimeDeleted.Sum())
}

func TestReReferenceResetsUnreferencedClock(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	c := newTestCollector(t, rt, rc, testConfig())

	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {},
		"/ds3": {},
	})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Re-reference before any threshold: the tracker is destroyed.
	rt.advance(50)
	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {"/ds3"},
		"/ds3": {},
	})
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Unreferenced again at t=100: the clock restarts from here, so the
	// original t=0 stamp must not count toward the sweep timeout.
	rt.advance(50)
	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {},
		"/ds3": {},
	})
	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated.Sum())

	rt.advance(99) // t=199: 99ms unreferenced, under the 100ms sweep timeout
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, c.Tombstones())

	rt.advance(1) // t=200: exactly at the sweep timeout
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/ds3"}, c.Tombstones())
}

func TestTransientReferenceHintResetsClock(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	c := newTestCollector(t, rt, rc, testConfig())

	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {},
		"/ds3": {},
	})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	// A reference was added and removed again between runs; by the next
	// run the node is still unreachable, but the touch must restart its
	// clock.
	c.AddedOutboundReference("/ds1", "/ds3")

	rt.advance(90)
	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated.Sum(), "hinted node should be re-stamped")

	// 100ms after the original stamp but only 10ms after the re-stamp.
	rt.advance(10)
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, c.Tombstones())

	rt.advance(90) // 100ms after the re-stamp
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/ds3"}, c.Tombstones())
}

func TestReferenceDataFailureAbortsRun(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	c := newTestCollector(t, rt, rc, testConfig())

	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {},
		"/ds3": {},
	})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	rc.used, rc.unused = nil, nil
	rt.dataErr = errors.New("subtree load failed")
	rt.advance(200)

	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Nil(t, rc.used, "aborted run must not report routes")
	assert.Nil(t, rc.unused)
	assert.Empty(t, c.Tombstones(), "aborted run must not advance phases")

	// The next successful run proceeds from consistent state.
	rt.dataErr = nil
	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tombstoned.Sum())
}

func TestRevivedTombstoneIsCleared(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	c := newTestCollector(t, rt, rc, testConfig())

	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {},
		"/ds3": {},
	})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	rt.advance(120)
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"/ds3"}, c.Tombstones())

	// A late-arriving op re-references the tombstoned node. Under-deletion
	// bias: it is fully revived.
	rt.setData([]string{"/ds1"}, map[string][]string{
		"/ds1": {"/ds3"},
		"/ds3": {},
	})
	_, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, c.Tombstones())
	assert.NoError(t, c.NodeUpdated(context.Background(), "/ds3", ReasonChanged, rt.CurrentReferenceTimestampMs(), nil))
}

func TestNodeUpdatedEnforcement(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted node always errors", func(t *testing.T) {
		rt := newFakeRuntime()
		cfg := testConfig()
		cfg.SweepEnabled = true
		c := newTestCollector(t, rt, &fakeReclaimer{}, cfg)

		rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
		_, err := c.CollectGarbage(ctx, RunOptions{})
		require.NoError(t, err)
		rt.advance(200)
		_, err = c.CollectGarbage(ctx, RunOptions{})
		require.NoError(t, err)
		require.True(t, c.IsNodeDeleted("/ds3"))

		err = c.NodeUpdated(ctx, "/ds3", ReasonLoaded, rt.CurrentReferenceTimestampMs(), []string{"app"})
		assert.ErrorIs(t, err, ErrNodeDeleted)

		var ne *NodeError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "/ds3", ne.Path)
	})

	t.Run("tombstoned node errors only under enforcement", func(t *testing.T) {
		for _, enforce := range []bool{true, false} {
			rt := newFakeRuntime()
			cfg := testConfig()
			cfg.TombstoneEnforcement = enforce
			c := newTestCollector(t, rt, &fakeReclaimer{}, cfg)

			rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
			_, err := c.CollectGarbage(ctx, RunOptions{})
			require.NoError(t, err)
			rt.advance(120)
			_, err = c.CollectGarbage(ctx, RunOptions{})
			require.NoError(t, err)
			require.Equal(t, []string{"/ds3"}, c.Tombstones())

			err = c.NodeUpdated(ctx, "/ds3", ReasonChanged, rt.CurrentReferenceTimestampMs(), nil)
			if enforce {
				assert.ErrorIs(t, err, ErrNodeTombstoned)
			} else {
				assert.NoError(t, err)
			}
		}
	})

	t.Run("inactive node errors only under strict policy", func(t *testing.T) {
		for _, strict := range []bool{true, false} {
			rt := newFakeRuntime()
			cfg := testConfig()
			cfg.StrictInactiveUsage = strict
			c := newTestCollector(t, rt, &fakeReclaimer{}, cfg)

			rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
			_, err := c.CollectGarbage(ctx, RunOptions{})
			require.NoError(t, err)
			rt.advance(50) // past inactive, under sweep

			err = c.NodeUpdated(ctx, "/ds3", ReasonChanged, rt.CurrentReferenceTimestampMs(), nil)
			if strict {
				assert.ErrorIs(t, err, ErrInactiveNodeUsed)
			} else {
				assert.NoError(t, err)
			}
		}
	})

	t.Run("active node is silent", func(t *testing.T) {
		rt := newFakeRuntime()
		c := newTestCollector(t, rt, &fakeReclaimer{}, testConfig())
		assert.NoError(t, c.NodeUpdated(ctx, "/ds1", ReasonLoaded, 0, nil))
	})
}

func TestSweepSkipsNodesOutsideCurrentGraph(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	cfg := testConfig()
	cfg.SweepEnabled = true
	c := newTestCollector(t, rt, rc, cfg)

	rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	// /ds3 disappears from the reported data (its subtree was never
	// loaded this session). Even sweep-ready it must not be deleted: data
	// this run never saw might still reference it.
	rt.advance(200)
	rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}})
	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Deleted.Sum())
	assert.Empty(t, rc.deleted)

	// Reported again: now it is a sweep candidate.
	rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
	stats, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/ds3"}, rc.deleted)
	assert.Equal(t, 1, stats.Deleted.Sum())
}

func TestSweepFailureIsRetriedNextRun(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	cfg := testConfig()
	cfg.SweepEnabled = true
	c := newTestCollector(t, rt, rc, cfg)

	rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	rt.advance(200)
	rc.deleteErr = errors.New("storage unavailable")
	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err, "sweep failure must not fail the run")
	assert.Equal(t, 0, stats.Deleted.Sum())
	assert.False(t, c.IsNodeDeleted("/ds3"))

	rc.deleteErr = nil
	stats, err = c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted.Sum())
	assert.True(t, c.IsNodeDeleted("/ds3"))
}

func TestSweepDisabledParksNodes(t *testing.T) {
	rt := newFakeRuntime()
	rc := &fakeReclaimer{}
	c := newTestCollector(t, rt, rc, testConfig()) // SweepEnabled false

	rt.setData([]string{"/ds1"}, map[string][]string{"/ds1": {}, "/ds3": {}})
	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)

	rt.advance(10000)
	stats, err := c.CollectGarbage(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Deleted.Sum())
	assert.Empty(t, rc.deleted)
	assert.Equal(t, []string{"/ds3"}, c.Tombstones())
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	rt := newFakeRuntime()
	c := New(rt, &fakeReclaimer{}, testConfig())
	require.NoError(t, c.InitializeBaseState(context.Background(), nil))

	c.Close()
	c.Close() // idempotent

	_, err := c.CollectGarbage(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Summarize(false, false)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.NodeUpdated(context.Background(), "/a", ReasonLoaded, 0, nil), ErrClosed)
}

func TestInitializeBaseStateTwiceFails(t *testing.T) {
	c := New(newFakeRuntime(), &fakeReclaimer{}, testConfig())
	defer c.Close()

	require.NoError(t, c.InitializeBaseState(context.Background(), nil))
	assert.Error(t, c.InitializeBaseState(context.Background(), nil))
}
