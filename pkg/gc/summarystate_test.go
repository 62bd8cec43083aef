package gc

import "testing"

func TestNoBaselineNoReuse(t *testing.T) {
	s := NewSummaryStateTracker()

	if s.HasBaseline() {
		t.Error("fresh tracker should have no baseline")
	}
	if s.CanReuseTreeChunk(0, 1, "h") || s.CanReuseTombstones("h") || s.CanReuseDeleted("h") {
		t.Error("no blob should be reusable without a baseline")
	}
}

func TestBaselineReuseDecisions(t *testing.T) {
	s := NewSummaryStateTracker()
	s.SetBaseline(summaryFingerprints{
		gcVersion:  CurrentGCVersion,
		treeChunks: []string{"t0", "t1"},
		tombstones: "tomb",
		deleted:    "del",
	})

	if !s.CanReuseTreeChunk(0, 2, "t0") || !s.CanReuseTreeChunk(1, 2, "t1") {
		t.Error("matching chunks should be reusable")
	}
	if s.CanReuseTreeChunk(0, 2, "changed") {
		t.Error("changed chunk content must not be reusable")
	}
	if s.CanReuseTreeChunk(0, 3, "t0") {
		t.Error("chunk-count change must invalidate all chunk reuse")
	}
	if !s.CanReuseTombstones("tomb") || s.CanReuseTombstones("other") {
		t.Error("tombstone reuse should follow the fingerprint")
	}
	if !s.CanReuseDeleted("del") || s.CanReuseDeleted("other") {
		t.Error("deleted-set reuse should follow the fingerprint")
	}
}

func TestVersionMismatchBlocksReuse(t *testing.T) {
	s := NewSummaryStateTracker()
	s.SetBaseline(summaryFingerprints{
		gcVersion:  CurrentGCVersion - 1,
		treeChunks: []string{"t0"},
		tombstones: "tomb",
		deleted:    "del",
	})

	if s.CanReuseTreeChunk(0, 1, "t0") || s.CanReuseTombstones("tomb") || s.CanReuseDeleted("del") {
		t.Error("a baseline at another schema version must not be reused")
	}
}

func TestAckPromotesPending(t *testing.T) {
	s := NewSummaryStateTracker()
	s.SetBaseline(summaryFingerprints{gcVersion: CurrentGCVersion, tombstones: "old"})

	s.TrackPending(summaryFingerprints{gcVersion: CurrentGCVersion, tombstones: "new"})
	if !s.CanReuseTombstones("old") {
		t.Error("pending must not replace the baseline before ack")
	}

	s.Ack(AckInfo{SummarySequenceNumber: 42})
	if got := s.LatestAckSequenceNumber(); got != 42 {
		t.Errorf("LatestAckSequenceNumber = %d, want 42", got)
	}
	if !s.CanReuseTombstones("new") || s.CanReuseTombstones("old") {
		t.Error("ack should promote the pending fingerprints")
	}

	// An ack for someone else's summary keeps our baseline.
	s.Ack(AckInfo{SummarySequenceNumber: 43})
	if !s.CanReuseTombstones("new") {
		t.Error("ack without pending must keep the current baseline")
	}
}
