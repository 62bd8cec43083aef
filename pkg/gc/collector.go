package gc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/internal/telemetry"
	"github.com/marmos91/dittodoc/pkg/summary"
)

// BaseSnapshot carries the GC fragment of the base snapshot the container
// loaded from. BlobIDs maps GC summary entry keys (gc_metadata, gc_tree,
// gc_tree_N, gc_tombstones, gc_deleted) to storage blob ids readable
// through Runtime.ReadAndParseBlob. Handles in the persisted summary are
// resolved to concrete blob ids by the loading layer before this point.
type BaseSnapshot struct {
	BlobIDs map[string]string
}

// Option configures a Collector.
type Option func(*Collector)

// WithMetrics attaches a metrics sink. Nil is allowed and disables
// collection.
func WithMetrics(m Metrics) Option {
	return func(c *Collector) { c.met = m }
}

// WithClock substitutes the wall clock used by the session-expiry timer.
func WithClock(clock Clock) Option {
	return func(c *Collector) { c.clock = clock }
}

// WithContainerID tags logs and traces with the container identifier.
func WithContainerID(id string) Option {
	return func(c *Collector) { c.containerID = id }
}

// Collector is the per-container garbage collector. One collector exists
// per loaded container; only the summarizer client's collector mutates
// state and produces summaries, all others observe.
//
// CollectGarbage and Summarize never overlap: a second call while one is
// in flight fails fast with ErrRunInProgress rather than queueing.
type Collector struct {
	// mu serializes runs and guards all collector state below it.
	mu sync.Mutex

	cfg         Config
	rt          Runtime
	rc          Reclaimer
	met         Metrics
	clock       Clock
	containerID string

	initialized bool
	closed      bool

	tracker *UnreferencedStateTracker

	// nodeRoutes is the latest observed outbound-route table, persisted as
	// the summary node table. Rebuilt from runtime data every run.
	nodeRoutes map[string][]string

	tombstones map[string]struct{}
	deleted    map[string]struct{}

	// hintMu guards touched separately from mu so reference notifications
	// arriving from op processing never block on a run in flight.
	hintMu  sync.Mutex
	touched map[string]struct{}

	summaryState *SummaryStateTracker
	expiry       *SessionExpiryTimer

	lifetimeRuns    int
	lifetimeDeleted TypeCounts
}

// New creates a collector over the given runtime and reclaimer. When
// sweep is enabled the session-expiry timer is armed immediately: closing
// sessions at the expiry bound is what makes the sweep timeout safe.
func New(rt Runtime, rc Reclaimer, cfg Config, opts ...Option) *Collector {
	cfg.Sanitize()

	c := &Collector{
		cfg:          cfg,
		rt:           rt,
		rc:           rc,
		clock:        SystemClock{},
		tracker:      NewUnreferencedStateTracker(cfg.Timeouts()),
		nodeRoutes:   make(map[string][]string),
		tombstones:   make(map[string]struct{}),
		deleted:      make(map[string]struct{}),
		touched:      make(map[string]struct{}),
		summaryState: NewSummaryStateTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.expiry = NewSessionExpiryTimer(c.clock, cfg.SessionExpiry, rt.Close)
	if cfg.SweepEnabled {
		c.expiry.Start()
	}

	return c
}

// InitializeBaseState loads persisted GC state from the base snapshot.
// Must complete before the first CollectGarbage or Summarize.
//
// A missing GC fragment starts the collector empty. A version mismatch or
// a malformed metadata/tree/tombstone blob discards the node table and
// tombstone set, treating those nodes as never-unreferenced; the deleted
// set survives whenever its own blob is readable, since deletion is
// irreversible.
func (c *Collector) InitializeBaseState(ctx context.Context, base *BaseSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.initialized {
		return errors.New("gc base state already initialized")
	}

	if base == nil || len(base.BlobIDs) == 0 {
		logger.Debug("no persisted gc state in base snapshot",
			logger.KeyContainer, c.containerID)
		c.initialized = true
		return nil
	}

	versionOK := false
	var meta Metadata
	if id, ok := base.BlobIDs[MetadataBlobKey]; ok {
		if err := c.rt.ReadAndParseBlob(ctx, id, &meta); err != nil {
			logger.Warn("gc metadata blob unreadable, discarding node and tombstone state",
				logger.KeyContainer, c.containerID,
				logger.KeyError, err.Error())
		} else if meta.GCVersion != CurrentGCVersion {
			logger.Warn("gc schema version changed, discarding node and tombstone state",
				logger.KeyContainer, c.containerID,
				logger.KeyGCVersion, meta.GCVersion)
		} else {
			versionOK = true
		}
	}

	// The deleted set is loaded regardless of version: swept nodes must
	// never be resurrected.
	if id, ok := base.BlobIDs[DeletedBlobKey]; ok {
		var deletedPaths []string
		if err := c.rt.ReadAndParseBlob(ctx, id, &deletedPaths); err != nil {
			logger.Warn("gc deleted-set blob unreadable, starting empty",
				logger.KeyContainer, c.containerID,
				logger.KeyError, err.Error())
		} else {
			for _, path := range deletedPaths {
				c.deleted[path] = struct{}{}
				c.lifetimeDeleted.add(c.rt.GetNodeType(path), 1)
			}
		}
	}

	clean := versionOK
	if versionOK {
		clean = c.loadNodeState(ctx, base)
	}

	if clean {
		// Fingerprint the loaded state so the first incremental summary
		// can reuse the base snapshot's blobs as handles.
		if fp, err := c.fingerprints(); err == nil {
			c.summaryState.SetBaseline(fp)
		}
	}

	c.initialized = true
	logger.Info("gc base state initialized",
		logger.KeyContainer, c.containerID,
		logger.KeyCount, len(c.nodeRoutes),
		"tombstones", len(c.tombstones),
		"deleted", len(c.deleted),
		logger.KeyGCVersion, CurrentGCVersion)
	return nil
}

// loadNodeState reads the node-table chunks and tombstone set. Any
// malformed blob discards both, reporting false.
func (c *Collector) loadNodeState(ctx context.Context, base *BaseSnapshot) bool {
	discard := func(reason string, err error) bool {
		logger.Warn("gc state blob unreadable, discarding node and tombstone state",
			logger.KeyContainer, c.containerID,
			logger.KeyReason, reason,
			logger.KeyError, err.Error())
		c.nodeRoutes = make(map[string][]string)
		c.tombstones = make(map[string]struct{})
		c.tracker.Reset()
		return false
	}

	var chunkKeys []string
	for key := range base.BlobIDs {
		if key == TreeBlobKey || (len(key) > len(TreeBlobKey) && key[:len(TreeBlobKey)+1] == TreeBlobKey+"_") {
			chunkKeys = append(chunkKeys, key)
		}
	}
	sort.Strings(chunkKeys)

	nowMs := c.rt.CurrentReferenceTimestampMs()
	timestamps := make(map[string]int64)

	for _, key := range chunkKeys {
		var table map[string]NodeData
		if err := c.rt.ReadAndParseBlob(ctx, base.BlobIDs[key], &table); err != nil {
			return discard(key, err)
		}
		for path, nd := range table {
			c.nodeRoutes[path] = nd.OutboundRoutes
			if nd.UnreferencedTimestampMs != nil {
				timestamps[path] = *nd.UnreferencedTimestampMs
			}
		}
	}

	if id, ok := base.BlobIDs[TombstoneBlobKey]; ok {
		var tombstoned []string
		if err := c.rt.ReadAndParseBlob(ctx, id, &tombstoned); err != nil {
			return discard(TombstoneBlobKey, err)
		}
		for _, path := range tombstoned {
			c.tombstones[path] = struct{}{}
		}
	}

	c.tracker.Load(timestamps, nowMs)
	return true
}

// CollectGarbage runs one mark/track/sweep pass. Returns ErrRunInProgress
// when a run or summary is already in flight.
//
// Ordering within the run: reference data is fetched first and a failure
// there aborts with no state mutated; only then are trackers stamped,
// phases recomputed, tombstones applied, and (when enabled) sweep-ready
// nodes deleted.
func (c *Collector) CollectGarbage(ctx context.Context, opts RunOptions) (stats *Stats, err error) {
	if !c.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if !c.initialized {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	runID := uuid.NewString()

	ctx, span := telemetry.StartGCRunSpan(ctx, c.containerID, runID, opts.FullGC)
	defer func() { telemetry.EndSpan(span, err) }()

	data, err := c.rt.GetGCData(ctx, opts.FullGC)
	if err != nil {
		logger.Error("gc run aborted: reference data unavailable",
			logger.KeyContainer, c.containerID,
			logger.KeyRunID, runID,
			logger.KeyError, err.Error())
		return nil, fmt.Errorf("get reference data: %w", err)
	}

	graph := BuildReferenceGraph(data)

	_, markSpan := telemetry.StartMarkSpan(ctx, graph.Len())
	reachable := graph.Mark()
	markSpan.End()

	nowMs := c.rt.CurrentReferenceTimestampMs()
	touched := c.drainTouched()

	stats = &Stats{RunID: runID}
	var used, unused []string

	for _, path := range graph.Paths() {
		if _, gone := c.deleted[path]; gone {
			// Deleted nodes may still surface in runtime data until the
			// delete propagates; they take no further part in GC.
			continue
		}

		nodeType := c.rt.GetNodeType(path)
		stats.Total.add(nodeType, 1)

		if _, ok := reachable[path]; ok {
			used = append(used, path)
			if c.tracker.Has(path) {
				c.tracker.Remove(path)
				logger.Debug("node re-referenced",
					logger.KeyRunID, runID,
					logger.KeyNode, path,
					logger.KeyNodeType, string(nodeType))
			}
			if _, wasTombstoned := c.tombstones[path]; wasTombstoned {
				delete(c.tombstones, path)
				logger.Info("tombstoned node revived",
					logger.KeyRunID, runID,
					logger.KeyNode, path)
			}
			continue
		}

		unused = append(unused, path)
		stats.Unreferenced.add(nodeType, 1)

		_, hinted := touched[path]
		switch {
		case !c.tracker.Has(path):
			c.tracker.Stamp(path, nowMs)
			stats.Updated.add(nodeType, 1)
		case hinted:
			// Something referenced this node since the last run, even if
			// the reference is gone again. Restart its clock; a rewound
			// phase also clears any tombstone.
			c.tracker.Stamp(path, nowMs)
			delete(c.tombstones, path)
			stats.Updated.add(nodeType, 1)
		}
	}

	changes := c.tracker.Recompute(nowMs)
	if len(changes.Inactive) > 0 {
		logger.Info("nodes became inactive",
			logger.KeyRunID, runID,
			logger.KeyCount, len(changes.Inactive))
	}

	var newTombstones []string
	for _, path := range append(changes.TombstoneReady, changes.SweepReady...) {
		if _, ok := c.tombstones[path]; ok {
			continue
		}
		c.tombstones[path] = struct{}{}
		newTombstones = append(newTombstones, path)
		stats.Tombstoned.add(c.rt.GetNodeType(path), 1)
	}
	sort.Strings(newTombstones)

	c.rc.UpdateUsedRoutes(used)
	c.rc.UpdateUnusedRoutes(unused)
	if len(newTombstones) > 0 {
		c.rc.UpdateTombstonedRoutes(newTombstones)
		logger.Info("nodes tombstoned",
			logger.KeyRunID, runID,
			logger.KeyCount, len(newTombstones))
	}

	if c.cfg.SweepEnabled {
		if sweepErr := c.sweep(ctx, runID, graph, reachable, stats); sweepErr != nil {
			// Sweep failure is non-fatal: candidates stay sweep-ready and
			// the next run retries.
			logger.Error("sweep failed",
				logger.KeyRunID, runID,
				logger.KeyError, sweepErr.Error())
		}
	}

	// Refresh the persisted route table from this run's data, dropping
	// swept nodes.
	routes := make(map[string][]string, len(graph.Paths()))
	for _, path := range graph.Paths() {
		if _, gone := c.deleted[path]; gone {
			continue
		}
		routes[path] = graph.Routes(path)
	}
	c.nodeRoutes = routes

	c.lifetimeRuns++
	stats.LifetimeRuns = c.lifetimeRuns
	stats.LifetimeDeleted = c.lifetimeDeleted
	stats.Duration = time.Since(start)

	if c.met != nil {
		c.met.ObserveRun(stats.Duration, stats)
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrGCNodesTotal, stats.Total.Sum()),
		attribute.Int(telemetry.AttrGCUnreferenced, stats.Unreferenced.Sum()),
		attribute.Int(telemetry.AttrGCTombstoned, stats.Tombstoned.Sum()),
		attribute.Int(telemetry.AttrGCDeleted, stats.Deleted.Sum()),
	)

	logger.Info("gc run completed",
		logger.KeyContainer, c.containerID,
		logger.KeyRunID, runID,
		"total", stats.Total.Sum(),
		"unreferenced", stats.Unreferenced.Sum(),
		"tombstoned", stats.Tombstoned.Sum(),
		"deleted", stats.Deleted.Sum(),
		logger.KeyDurationMs, float64(stats.Duration.Microseconds())/1000.0)

	return stats, nil
}

// sweep deletes sweep-ready nodes that are present and unreachable in the
// current graph. Nodes absent from the graph (e.g. in unloaded subtrees)
// are skipped: they might still be referenced from data this run never
// saw.
func (c *Collector) sweep(ctx context.Context, runID string, graph *ReferenceGraph, reachable map[string]struct{}, stats *Stats) error {
	var candidates []string
	for _, path := range c.tracker.SweepReady() {
		if !graph.Has(path) {
			continue
		}
		if _, ok := reachable[path]; ok {
			continue
		}
		candidates = append(candidates, path)
	}
	if len(candidates) == 0 {
		return nil
	}

	_, sweepSpan := telemetry.StartSweepSpan(ctx, len(candidates))
	deleted, err := c.rc.DeleteSweepReadyNodes(ctx, candidates)
	telemetry.EndSpan(sweepSpan, err)
	if err != nil {
		return err
	}

	perType := make(map[NodeType]int)
	for _, path := range deleted {
		nodeType := c.rt.GetNodeType(path)
		perType[nodeType]++
		stats.Deleted.add(nodeType, 1)
		c.lifetimeDeleted.add(nodeType, 1)

		c.deleted[path] = struct{}{}
		c.tracker.Remove(path)
		delete(c.tombstones, path)

		logger.Info("node swept",
			logger.KeyRunID, runID,
			logger.KeyNode, path,
			logger.KeyNodeType, string(nodeType))
	}

	if c.met != nil {
		for nodeType, count := range perType {
			c.met.RecordSweep(nodeType, count)
		}
	}
	return nil
}

// drainTouched takes and clears the reference hints accumulated since the
// last run.
func (c *Collector) drainTouched() map[string]struct{} {
	c.hintMu.Lock()
	defer c.hintMu.Unlock()
	touched := c.touched
	c.touched = make(map[string]struct{})
	return touched
}

// AddedOutboundReference records that an edit added a reference to toPath.
// The hint survives even if the reference is removed before the next run,
// so a transient touch still resets the target's unreferenced clock.
// Safe to call concurrently with a run in flight.
func (c *Collector) AddedOutboundReference(fromPath, toPath string) {
	c.hintMu.Lock()
	c.touched[toPath] = struct{}{}
	c.hintMu.Unlock()

	logger.Debug("outbound reference added",
		logger.KeyNode, toPath,
		"from", fromPath)
}

// NodeUpdated is the runtime's notification that a node was loaded or
// changed. It enforces the GC access policy: deleted nodes always error,
// tombstoned nodes error under tombstone enforcement, and inactive nodes
// are logged (or error under the strict policy). timestampMs is the
// reference time of the triggering op.
func (c *Collector) NodeUpdated(ctx context.Context, path string, reason UpdateReason, timestampMs int64, packagePath []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	nodeType := c.rt.GetNodeType(path)

	if _, gone := c.deleted[path]; gone {
		if c.met != nil {
			c.met.RecordTombstoneAccess(nodeType)
		}
		logger.ErrorCtx(ctx, "deleted node used",
			logger.KeyNode, path,
			logger.KeyNodeType, string(nodeType),
			logger.KeyReason, reason.String(),
			logger.KeyPackagePath, packagePath)
		return nodeErr(path, ErrNodeDeleted)
	}

	if _, tombstoned := c.tombstones[path]; tombstoned && c.cfg.TombstoneEnforcement {
		if c.met != nil {
			c.met.RecordTombstoneAccess(nodeType)
		}
		logger.WarnCtx(ctx, "tombstoned node used",
			logger.KeyNode, path,
			logger.KeyNodeType, string(nodeType),
			logger.KeyReason, reason.String(),
			logger.KeyPackagePath, packagePath)
		return nodeErr(path, ErrNodeTombstoned)
	}

	state, tracked := c.tracker.State(path)
	if !tracked {
		return nil
	}

	if c.tracker.PhaseAt(state.UnreferencedTimestampMs, timestampMs) >= PhaseInactive {
		if c.met != nil {
			c.met.RecordInactiveUsage(nodeType)
		}
		logger.WarnCtx(ctx, "inactive node used",
			logger.KeyNode, path,
			logger.KeyNodeType, string(nodeType),
			logger.KeyReason, reason.String(),
			logger.KeyElapsedMs, timestampMs-state.UnreferencedTimestampMs,
			logger.KeyPackagePath, packagePath)
		if c.cfg.StrictInactiveUsage {
			return nodeErr(path, ErrInactiveNodeUsed)
		}
	}

	return nil
}

// Summarize produces the GC summary fragment. With fullTree every blob is
// written fresh; otherwise blobs whose content matches the previously
// acknowledged summary become handles. With trackState the produced
// fingerprints are recorded and become the reuse baseline once
// RefreshLatestSummary acknowledges them.
func (c *Collector) Summarize(fullTree, trackState bool) (*summary.Tree, error) {
	if !c.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if !c.initialized {
		return nil, ErrNotInitialized
	}

	_, span := telemetry.StartSummarizeSpan(context.Background(), fullTree)
	defer span.End()

	table := buildNodeTable(c.nodeRoutes, c.tracker)
	chunks, err := chunkNodeTable(table, c.cfg.MaxNodesPerBlob)
	if err != nil {
		return nil, err
	}
	tombstoneData, err := encodeStringSet(c.tombstones)
	if err != nil {
		return nil, fmt.Errorf("encode tombstone set: %w", err)
	}
	deletedData, err := encodeStringSet(c.deleted)
	if err != nil {
		return nil, fmt.Errorf("encode deleted set: %w", err)
	}

	tree := summary.NewTree()

	reuse := !fullTree
	if reuse && c.summaryState.HasBaseline() {
		tree.AddHandle(MetadataBlobKey)
	} else if err := tree.AddBlob(MetadataBlobKey, Metadata{GCVersion: CurrentGCVersion}); err != nil {
		return nil, err
	}

	for i, chunk := range chunks {
		key := treeChunkKey(i, len(chunks))
		if reuse && c.summaryState.CanReuseTreeChunk(i, len(chunks), chunk.hash) {
			tree.AddHandle(key)
		} else {
			tree.AddRawBlob(key, chunk.data)
		}
	}

	if reuse && c.summaryState.CanReuseTombstones(fingerprint(tombstoneData)) {
		tree.AddHandle(TombstoneBlobKey)
	} else {
		tree.AddRawBlob(TombstoneBlobKey, tombstoneData)
	}

	if reuse && c.summaryState.CanReuseDeleted(fingerprint(deletedData)) {
		tree.AddHandle(DeletedBlobKey)
	} else {
		tree.AddRawBlob(DeletedBlobKey, deletedData)
	}

	if trackState {
		c.summaryState.TrackPending(makeFingerprints(chunks, tombstoneData, deletedData))
	}

	fresh, reused := tree.Counts()
	if c.met != nil {
		c.met.RecordSummaryBlobs(fresh, reused)
	}
	span.SetAttributes(
		attribute.Int(telemetry.AttrSummaryBlobsFresh, fresh),
		attribute.Int(telemetry.AttrSummaryBlobsReuse, reused),
	)

	logger.Info("gc summary produced",
		logger.KeyContainer, c.containerID,
		"blobs_fresh", fresh,
		"blobs_reused", reused,
		"full_tree", fullTree)

	return tree, nil
}

// RefreshLatestSummary acknowledges a summary: the tracked pending
// fingerprints become the handle-reuse baseline.
func (c *Collector) RefreshLatestSummary(info AckInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaryState.Ack(info)
}

// IsNodeDeleted reports whether path was swept.
func (c *Collector) IsNodeDeleted(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.deleted[path]
	return ok
}

// Tombstones returns the currently tombstoned node paths, sorted.
func (c *Collector) Tombstones() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedPaths(c.tombstones)
}

// DeletedNodes returns the swept node paths, sorted.
func (c *Collector) DeletedNodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedPaths(c.deleted)
}

// Close stops the session-expiry timer and rejects further calls.
// Idempotent.
func (c *Collector) Close() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	if !alreadyClosed {
		c.expiry.Stop()
	}
}

// fingerprints hashes the current persisted-form state for reuse
// decisions.
func (c *Collector) fingerprints() (summaryFingerprints, error) {
	table := buildNodeTable(c.nodeRoutes, c.tracker)
	chunks, err := chunkNodeTable(table, c.cfg.MaxNodesPerBlob)
	if err != nil {
		return summaryFingerprints{}, err
	}
	tombstoneData, err := encodeStringSet(c.tombstones)
	if err != nil {
		return summaryFingerprints{}, err
	}
	deletedData, err := encodeStringSet(c.deleted)
	if err != nil {
		return summaryFingerprints{}, err
	}
	return makeFingerprints(chunks, tombstoneData, deletedData), nil
}

// makeFingerprints assembles per-blob fingerprints for one summary.
func makeFingerprints(chunks []nodeTableChunk, tombstoneData, deletedData []byte) summaryFingerprints {
	fp := summaryFingerprints{
		gcVersion:  CurrentGCVersion,
		tombstones: fingerprint(tombstoneData),
		deleted:    fingerprint(deletedData),
	}
	for _, chunk := range chunks {
		fp.treeChunks = append(fp.treeChunks, chunk.hash)
	}
	return fp
}

func sortedPaths(set map[string]struct{}) []string {
	paths := make([]string, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
