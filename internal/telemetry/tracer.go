package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for GC operations.
const (
	// ========================================================================
	// Container attributes
	// ========================================================================
	AttrContainerID = "container.id"
	AttrClientID    = "container.client_id"

	// ========================================================================
	// GC run attributes
	// ========================================================================
	AttrGCRunID        = "gc.run_id"
	AttrGCFull         = "gc.full"
	AttrGCNodesTotal   = "gc.nodes_total"
	AttrGCUnreferenced = "gc.unreferenced"
	AttrGCTombstoned   = "gc.tombstoned"
	AttrGCDeleted      = "gc.deleted"
	AttrGCVersion      = "gc.version"

	// ========================================================================
	// Summary attributes
	// ========================================================================
	AttrSummaryFullTree   = "summary.full_tree"
	AttrSummaryBlobsFresh = "summary.blobs_fresh"
	AttrSummaryBlobsReuse = "summary.blobs_reused"
)

// StartGCRunSpan starts a span for a full GC run.
func StartGCRunSpan(ctx context.Context, containerID, runID string, fullGC bool) (context.Context, trace.Span) {
	return StartSpan(ctx, "gc.collect",
		trace.WithAttributes(
			attribute.String(AttrContainerID, containerID),
			attribute.String(AttrGCRunID, runID),
			attribute.Bool(AttrGCFull, fullGC),
		),
	)
}

// StartMarkSpan starts a span for the mark/reachability phase.
func StartMarkSpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	return StartSpan(ctx, "gc.mark",
		trace.WithAttributes(attribute.Int(AttrGCNodesTotal, nodeCount)),
	)
}

// StartSweepSpan starts a span for the sweep phase.
func StartSweepSpan(ctx context.Context, candidates int) (context.Context, trace.Span) {
	return StartSpan(ctx, "gc.sweep",
		trace.WithAttributes(attribute.Int(AttrGCDeleted, candidates)),
	)
}

// StartSummarizeSpan starts a span for GC summary production.
func StartSummarizeSpan(ctx context.Context, fullTree bool) (context.Context, trace.Span) {
	return StartSpan(ctx, "gc.summarize",
		trace.WithAttributes(attribute.Bool(AttrSummaryFullTree, fullTree)),
	)
}

// EndSpan ends a span, recording err if non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
