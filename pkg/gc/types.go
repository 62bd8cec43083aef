package gc

// RootPath is the synthetic root of the reference graph. Its outbound
// routes are the always-referenced container roots.
const RootPath = "/"

// CurrentGCVersion is the GC schema/feature version written to summary
// metadata. Node table and tombstone state persisted under a different
// version is discarded on load.
const CurrentGCVersion = 4

// NodeType classifies a GC node for statistics and telemetry.
type NodeType string

const (
	NodeTypeDataStore NodeType = "datastore"
	NodeTypeBlob      NodeType = "blob"
	NodeTypeOther     NodeType = "other"
)

// Phase is the stage a tracked unreferenced node has reached. Absence of
// a tracker means the node is reachable (active).
type Phase int

const (
	// PhaseUnreferenced means the node lacked a path from root in the
	// latest mark but has not yet crossed any timeout.
	PhaseUnreferenced Phase = iota

	// PhaseInactive means the node has been unreferenced for at least the
	// inactive timeout. Advisory: usage is logged but permitted.
	PhaseInactive

	// PhaseTombstoneReady means the node has been unreferenced for at
	// least the sweep timeout. No live session can legitimately still
	// hold a reference; access is denied under tombstone enforcement.
	PhaseTombstoneReady

	// PhaseSweepReady means the grace period past the sweep timeout has
	// also elapsed. The next enabled sweep deletes the node.
	PhaseSweepReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUnreferenced:
		return "unreferenced"
	case PhaseInactive:
		return "inactive"
	case PhaseTombstoneReady:
		return "tombstone-ready"
	case PhaseSweepReady:
		return "sweep-ready"
	default:
		return "unknown"
	}
}

// UpdateReason describes why the runtime reports a node update.
type UpdateReason int

const (
	ReasonLoaded UpdateReason = iota
	ReasonChanged
)

func (r UpdateReason) String() string {
	switch r {
	case ReasonLoaded:
		return "loaded"
	case ReasonChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// GCData is the runtime-reported reference data for one GC run.
//
// Nodes maps each realized node's absolute path to its outbound routes.
// Nodes the runtime has never realized are absent and are treated as
// potentially referenced: they never become sweep candidates.
type GCData struct {
	// Nodes maps node path to outbound routes.
	Nodes map[string][]string

	// Roots are the loaded root node paths. The collector adds a
	// synthetic edge from RootPath to each.
	Roots []string
}

// RunOptions configures a single CollectGarbage run.
type RunOptions struct {
	// FullGC requests the complete reference graph from the runtime
	// rather than a runtime-reduced one.
	FullGC bool
}
