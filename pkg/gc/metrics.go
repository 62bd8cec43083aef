package gc

import "time"

// Metrics receives GC observability events. Implementations live in
// pkg/metrics/prometheus; a nil Metrics disables collection with zero
// overhead.
type Metrics interface {
	// ObserveRun records a completed CollectGarbage run.
	ObserveRun(duration time.Duration, stats *Stats)

	// RecordInactiveUsage records access to an inactive node.
	RecordInactiveUsage(nodeType NodeType)

	// RecordTombstoneAccess records denied access to a tombstoned node.
	RecordTombstoneAccess(nodeType NodeType)

	// RecordSweep records physically deleted nodes.
	RecordSweep(nodeType NodeType, count int)

	// RecordSummaryBlobs records how many GC summary blobs were written
	// fresh versus reused as handles.
	RecordSummaryBlobs(fresh, reused int)
}
