package gc

import "sort"

// Timeouts holds the phase thresholds in milliseconds, measured from the
// unreferenced timestamp against the runtime's reference clock.
type Timeouts struct {
	// InactiveMs is the Unreferenced -> Inactive threshold.
	InactiveMs int64

	// SweepMs is the Inactive -> TombstoneReady threshold.
	SweepMs int64

	// GraceMs is the additional TombstoneReady -> SweepReady window.
	GraceMs int64
}

// NodeState is the tracked state of one unreferenced node. Nodes without
// a NodeState are active (reachable).
type NodeState struct {
	// UnreferencedTimestampMs records the reference time of the most
	// recent transition into unreferencedness. Any intervening reference,
	// even transient or from another unreferenced node, resets it.
	UnreferencedTimestampMs int64

	// Phase is the stage reached as of the last recompute.
	Phase Phase
}

// UnreferencedStateTracker owns the per-node unreferenced timers. All
// phase transitions are recomputed deterministically from the stored
// timestamps on every run; there are no background timers here.
//
// Not safe for concurrent use; the collector serializes access.
type UnreferencedStateTracker struct {
	timeouts Timeouts
	nodes    map[string]*NodeState
}

// NewUnreferencedStateTracker creates an empty tracker with the given
// thresholds.
func NewUnreferencedStateTracker(timeouts Timeouts) *UnreferencedStateTracker {
	return &UnreferencedStateTracker{
		timeouts: timeouts,
		nodes:    make(map[string]*NodeState),
	}
}

// PhaseAt derives the phase for a node whose unreferenced timestamp is
// sinceMs, as of nowMs. The reference clock never runs backwards; a
// negative elapsed is clamped to Unreferenced.
func (t *UnreferencedStateTracker) PhaseAt(sinceMs, nowMs int64) Phase {
	elapsed := nowMs - sinceMs
	switch {
	case elapsed >= t.timeouts.SweepMs+t.timeouts.GraceMs:
		return PhaseSweepReady
	case elapsed >= t.timeouts.SweepMs:
		return PhaseTombstoneReady
	case elapsed >= t.timeouts.InactiveMs:
		return PhaseInactive
	default:
		return PhaseUnreferenced
	}
}

// Stamp records that path is unreferenced as of nowMs, creating a tracker
// entry or resetting an existing one. Resetting also rewinds the phase:
// the inactivity clock restarts on any observed touch.
func (t *UnreferencedStateTracker) Stamp(path string, nowMs int64) {
	state, ok := t.nodes[path]
	if !ok {
		t.nodes[path] = &NodeState{
			UnreferencedTimestampMs: nowMs,
			Phase:                   t.PhaseAt(nowMs, nowMs),
		}
		return
	}
	state.UnreferencedTimestampMs = nowMs
	state.Phase = t.PhaseAt(nowMs, nowMs)
}

// Remove drops the tracker for path; the node is active again.
func (t *UnreferencedStateTracker) Remove(path string) {
	delete(t.nodes, path)
}

// State returns the tracked state for path, or false if the node is
// active.
func (t *UnreferencedStateTracker) State(path string) (NodeState, bool) {
	state, ok := t.nodes[path]
	if !ok {
		return NodeState{}, false
	}
	return *state, true
}

// Has reports whether path is tracked as unreferenced.
func (t *UnreferencedStateTracker) Has(path string) bool {
	_, ok := t.nodes[path]
	return ok
}

// Len returns the number of tracked nodes.
func (t *UnreferencedStateTracker) Len() int {
	return len(t.nodes)
}

// Paths returns the tracked node paths, sorted.
func (t *UnreferencedStateTracker) Paths() []string {
	paths := make([]string, 0, len(t.nodes))
	for path := range t.nodes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// PhaseChanges lists the nodes that crossed a threshold during a
// Recompute, by the phase they entered.
type PhaseChanges struct {
	Inactive       []string
	TombstoneReady []string
	SweepReady     []string
}

// Recompute re-derives every tracked node's phase as of nowMs and
// returns the nodes that advanced. Phases only move forward here; the
// only way back is Remove on re-reference.
func (t *UnreferencedStateTracker) Recompute(nowMs int64) PhaseChanges {
	var changes PhaseChanges

	for path, state := range t.nodes {
		next := t.PhaseAt(state.UnreferencedTimestampMs, nowMs)
		if next <= state.Phase {
			continue
		}

		// A node may cross several thresholds in one run (e.g. after a
		// long-idle container loads). Report only the phase reached.
		switch next {
		case PhaseInactive:
			changes.Inactive = append(changes.Inactive, path)
		case PhaseTombstoneReady:
			changes.TombstoneReady = append(changes.TombstoneReady, path)
		case PhaseSweepReady:
			changes.SweepReady = append(changes.SweepReady, path)
		}
		state.Phase = next
	}

	sort.Strings(changes.Inactive)
	sort.Strings(changes.TombstoneReady)
	sort.Strings(changes.SweepReady)
	return changes
}

// SweepReady returns all nodes currently at PhaseSweepReady, sorted.
func (t *UnreferencedStateTracker) SweepReady() []string {
	var ready []string
	for path, state := range t.nodes {
		if state.Phase == PhaseSweepReady {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// Load rehydrates tracker entries from persisted timestamps, deriving
// each phase as of nowMs. Existing entries are discarded.
func (t *UnreferencedStateTracker) Load(timestamps map[string]int64, nowMs int64) {
	t.nodes = make(map[string]*NodeState, len(timestamps))
	for path, ts := range timestamps {
		t.nodes[path] = &NodeState{
			UnreferencedTimestampMs: ts,
			Phase:                   t.PhaseAt(ts, nowMs),
		}
	}
}

// Reset discards all tracked state.
func (t *UnreferencedStateTracker) Reset() {
	t.nodes = make(map[string]*NodeState)
}
