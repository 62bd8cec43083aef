package gc

// summaryFingerprints captures the content of one GC summary for
// incremental diffing: the schema version and one hash per blob.
type summaryFingerprints struct {
	gcVersion  int
	treeChunks []string // one fingerprint per node-table blob, in order
	tombstones string
	deleted    string
}

// AckInfo identifies the summary acknowledged by the ordering service.
type AckInfo struct {
	// SummarySequenceNumber is the sequence number the acked summary was
	// generated at.
	SummarySequenceNumber int64
}

// SummaryStateTracker decides, per GC sub-blob, whether a new summary can
// reuse the previous acknowledged summary's blob via a handle or must
// write fresh data. Decisions are per-blob, not whole-tree, so large
// graphs with localized churn keep their incremental summaries small.
//
// Not safe for concurrent use; the collector serializes access.
type SummaryStateTracker struct {
	// latest is the acknowledged baseline: the base snapshot at load
	// time, then each acked summary after RefreshLatestSummary.
	latest *summaryFingerprints

	// pending is the most recently produced tracked summary, promoted to
	// latest on ack.
	pending *summaryFingerprints

	latestAckSeq int64
}

// NewSummaryStateTracker returns a tracker with no baseline; every blob
// of the first summary is written fresh.
func NewSummaryStateTracker() *SummaryStateTracker {
	return &SummaryStateTracker{}
}

// SetBaseline installs fingerprints loaded from the base snapshot as the
// acknowledged baseline.
func (s *SummaryStateTracker) SetBaseline(fp summaryFingerprints) {
	cp := fp
	s.latest = &cp
	s.pending = nil
}

// CanReuseTreeChunk reports whether the i-th of chunkCount node-table
// blobs matches the baseline. A changed chunk count invalidates reuse:
// chunk boundaries moved, so handle keys no longer line up.
func (s *SummaryStateTracker) CanReuseTreeChunk(i, chunkCount int, hash string) bool {
	if s.latest == nil || s.latest.gcVersion != CurrentGCVersion {
		return false
	}
	if len(s.latest.treeChunks) != chunkCount || i >= chunkCount {
		return false
	}
	return s.latest.treeChunks[i] == hash
}

// CanReuseTombstones reports whether the tombstone-set blob is unchanged
// against the baseline.
func (s *SummaryStateTracker) CanReuseTombstones(hash string) bool {
	return s.latest != nil && s.latest.gcVersion == CurrentGCVersion &&
		s.latest.tombstones == hash
}

// CanReuseDeleted reports whether the deleted-set blob is unchanged
// against the baseline.
func (s *SummaryStateTracker) CanReuseDeleted(hash string) bool {
	return s.latest != nil && s.latest.gcVersion == CurrentGCVersion &&
		s.latest.deleted == hash
}

// TrackPending records the fingerprints of a summary that was produced
// with state tracking, to become the baseline once acknowledged.
func (s *SummaryStateTracker) TrackPending(fp summaryFingerprints) {
	cp := fp
	s.pending = &cp
}

// Ack promotes the pending summary to the acknowledged baseline. Acks
// without a tracked pending summary (e.g. from another client's summary
// before ours) leave the baseline unchanged.
func (s *SummaryStateTracker) Ack(info AckInfo) {
	s.latestAckSeq = info.SummarySequenceNumber
	if s.pending != nil {
		s.latest = s.pending
		s.pending = nil
	}
}

// LatestAckSequenceNumber returns the sequence number of the most recent
// acknowledged summary.
func (s *SummaryStateTracker) LatestAckSequenceNumber() int64 {
	return s.latestAckSeq
}

// HasBaseline reports whether an acknowledged baseline exists.
func (s *SummaryStateTracker) HasBaseline() bool {
	return s.latest != nil
}
