package gc

import "time"

// TypeCounts breaks a node count down by node type.
type TypeCounts struct {
	DataStores int
	Blobs      int
	Other      int
}

// Sum returns the total across all node types.
func (c TypeCounts) Sum() int {
	return c.DataStores + c.Blobs + c.Other
}

func (c *TypeCounts) add(t NodeType, n int) {
	switch t {
	case NodeTypeDataStore:
		c.DataStores += n
	case NodeTypeBlob:
		c.Blobs += n
	default:
		c.Other += n
	}
}

// Stats summarizes one CollectGarbage run plus the collector's lifetime
// counters.
type Stats struct {
	// RunID uniquely identifies the run in logs and traces.
	RunID string

	// Total counts the nodes reported by the runtime this run.
	Total TypeCounts

	// Unreferenced counts the nodes without a path from root this run.
	Unreferenced TypeCounts

	// Updated counts the trackers stamped or re-stamped this run.
	Updated TypeCounts

	// Tombstoned counts the nodes newly tombstoned this run.
	Tombstoned TypeCounts

	// Deleted counts the nodes swept this run.
	Deleted TypeCounts

	// LifetimeRuns is the number of completed runs on this collector,
	// including rehydrated history from the base snapshot.
	LifetimeRuns int

	// LifetimeDeleted accumulates swept nodes across the collector's
	// lifetime, including the deleted set loaded from the base snapshot.
	LifetimeDeleted TypeCounts

	// Duration is the elapsed wall time of the run.
	Duration time.Duration
}
