package container

import (
	"context"
	"fmt"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/pkg/gc"
	"github.com/marmos91/dittodoc/pkg/snapshot"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

// runtimeAdapter exposes a Document plus a snapshot manager as the
// collector's Runtime and Reclaimer surfaces.
type runtimeAdapter struct {
	doc   *Document
	snaps *snapshot.Manager
}

func (r *runtimeAdapter) GetGCData(ctx context.Context, fullGC bool) (*gc.GCData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if closed, _ := r.doc.Closed(); closed {
		return nil, ErrDocumentClosed
	}
	return r.doc.gcData(fullGC), nil
}

func (r *runtimeAdapter) GetNodeType(path string) gc.NodeType {
	node, ok := r.doc.Node(path)
	if !ok {
		return gc.NodeTypeOther
	}
	return node.Type
}

func (r *runtimeAdapter) CurrentReferenceTimestampMs() int64 {
	return r.doc.ReferenceTimestampMs()
}

func (r *runtimeAdapter) ReadAndParseBlob(ctx context.Context, id string, v any) error {
	return r.snaps.ReadAndParseBlob(ctx, id, v)
}

func (r *runtimeAdapter) GetNodePackagePath(ctx context.Context, path string) ([]string, error) {
	node, ok := r.doc.Node(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}
	return node.PackagePath, nil
}

func (r *runtimeAdapter) Close(err error) {
	r.doc.Close(err)
}

func (r *runtimeAdapter) UpdateUsedRoutes(routes []string) {
	r.doc.setRouteState(routes, RouteStateUsed)
}

func (r *runtimeAdapter) UpdateUnusedRoutes(routes []string) {
	r.doc.setRouteState(routes, RouteStateUnused)
}

func (r *runtimeAdapter) UpdateTombstonedRoutes(routes []string) {
	r.doc.setRouteState(routes, RouteStateTombstoned)
}

func (r *runtimeAdapter) DeleteSweepReadyNodes(ctx context.Context, routes []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.doc.deleteNodes(routes), nil
}

// Both collector surfaces are served by the same adapter.
var (
	_ gc.Runtime   = (*runtimeAdapter)(nil)
	_ gc.Reclaimer = (*runtimeAdapter)(nil)
)

// Session ties a document, its collector, and summary persistence
// together for the summarizer client. Exactly one session per container
// acts as the summarizer.
type Session struct {
	doc       *Document
	collector *gc.Collector
	snaps     *snapshot.Manager
	seq       int64
}

// SessionOptions configures a session.
type SessionOptions struct {
	GC gc.Config

	// Metrics is handed through to the collector. Optional.
	Metrics gc.Metrics

	// Clock substitutes the session-expiry wall clock. Optional.
	Clock gc.Clock
}

// NewSession opens the summarizer session for containerID over the given
// blob store. The latest persisted summary, if any, becomes the
// collector's base state; GC access enforcement is wired into the
// document's update path.
func NewSession(ctx context.Context, containerID string, blobStore store.BlobStore, opts SessionOptions) (*Session, error) {
	snaps := snapshot.NewManager(blobStore, containerID)
	doc := NewDocument(containerID)
	adapter := &runtimeAdapter{doc: doc, snaps: snaps}

	gcOpts := []gc.Option{gc.WithContainerID(containerID)}
	if opts.Metrics != nil {
		gcOpts = append(gcOpts, gc.WithMetrics(opts.Metrics))
	}
	if opts.Clock != nil {
		gcOpts = append(gcOpts, gc.WithClock(opts.Clock))
	}

	collector := gc.New(adapter, adapter, opts.GC, gcOpts...)

	seq, err := snaps.LatestSequence(ctx)
	if err != nil {
		collector.Close()
		return nil, fmt.Errorf("find latest summary: %w", err)
	}

	var base *gc.BaseSnapshot
	if seq >= 0 {
		base, err = snaps.LoadBase(ctx, seq)
		if err != nil {
			collector.Close()
			return nil, fmt.Errorf("load base snapshot: %w", err)
		}
	}
	if err := collector.InitializeBaseState(ctx, base); err != nil {
		collector.Close()
		return nil, fmt.Errorf("initialize gc base state: %w", err)
	}

	doc.OnReferenceAdded(collector.AddedOutboundReference)
	doc.OnNodeUpdated(func(path string, reason gc.UpdateReason, timestampMs int64, packagePath []string) error {
		return collector.NodeUpdated(context.Background(), path, reason, timestampMs, packagePath)
	})

	logger.Info("summarizer session opened",
		logger.KeyContainer, containerID,
		"base_sequence", seq)

	return &Session{
		doc:       doc,
		collector: collector,
		snaps:     snaps,
		seq:       seq,
	}, nil
}

// Document returns the hosted document.
func (s *Session) Document() *Document {
	return s.doc
}

// Collector returns the session's garbage collector.
func (s *Session) Collector() *gc.Collector {
	return s.collector
}

// RunGC runs one collection pass.
func (s *Session) RunGC(ctx context.Context, opts gc.RunOptions) (*gc.Stats, error) {
	return s.collector.CollectGarbage(ctx, opts)
}

// Summarize produces the next summary, uploads it, and acknowledges it.
// Returns the uploaded sequence number.
func (s *Session) Summarize(ctx context.Context, fullTree bool) (int64, error) {
	tree, err := s.collector.Summarize(fullTree, true)
	if err != nil {
		return 0, err
	}

	seq := s.seq + 1
	if err := s.snaps.UploadSummary(ctx, seq, tree); err != nil {
		return 0, fmt.Errorf("upload summary: %w", err)
	}
	s.seq = seq

	// Single summarizer: a durable upload is the ack.
	s.collector.RefreshLatestSummary(gc.AckInfo{SummarySequenceNumber: seq})
	return seq, nil
}

// LatestSequence returns the sequence number of the last uploaded
// summary, or -1.
func (s *Session) LatestSequence() int64 {
	return s.seq
}

// Close shuts the collector and document down.
func (s *Session) Close() {
	s.collector.Close()
	s.doc.Close(nil)
}
