package gc

import "context"

// Runtime is the surface the collector consumes from the hosting
// container runtime. The runtime reports reference data and realizes
// objects; the collector never holds live references to them.
//
// Implementations must not call back into the Collector from these
// methods: the collector invokes them while holding its run lock.
type Runtime interface {
	// GetGCData returns the current reference data. With fullGC the
	// complete graph is requested; this may require loading
	// not-yet-fetched subtrees. A failure here aborts the GC run with no
	// partial state committed.
	GetGCData(ctx context.Context, fullGC bool) (*GCData, error)

	// GetNodeType classifies a node path for statistics.
	GetNodeType(path string) NodeType

	// CurrentReferenceTimestampMs returns the reference clock used for
	// all phase computation. This is sequenced container time, not local
	// wall time, so replay from old snapshots stays consistent.
	CurrentReferenceTimestampMs() int64

	// ReadAndParseBlob reads the blob with the given id from the base
	// snapshot and JSON-decodes it into v.
	ReadAndParseBlob(ctx context.Context, id string, v any) error

	// GetNodePackagePath returns the package path of a node, for
	// telemetry only.
	GetNodePackagePath(ctx context.Context, path string) ([]string, error)

	// Close shuts the hosting session down, e.g. on session expiry.
	Close(err error)
}

// Reclaimer is the surface the collector drives to enforce GC decisions
// in the runtime. All methods receive node paths, never objects.
//
// The same reentrancy rule as Runtime applies.
type Reclaimer interface {
	// UpdateUsedRoutes reports the nodes found reachable in the latest
	// mark, including those revived by re-reference.
	UpdateUsedRoutes(routes []string)

	// UpdateUnusedRoutes reports the nodes found unreachable in the
	// latest mark.
	UpdateUnusedRoutes(routes []string)

	// UpdateTombstonedRoutes reports the nodes whose access must now be
	// denied.
	UpdateTombstonedRoutes(routes []string)

	// DeleteSweepReadyNodes physically deletes the given nodes and
	// returns the routes actually deleted. Idempotent: already-deleted
	// routes are skipped, not errors.
	DeleteSweepReadyNodes(ctx context.Context, routes []string) ([]string, error)
}
