package gc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Blob keys of the GC summary fragment. The node table may be split
// across several gc_tree_N blobs for large graphs; single-blob tables use
// the bare gc_tree key.
const (
	MetadataBlobKey  = "gc_metadata"
	TreeBlobKey      = "gc_tree"
	TombstoneBlobKey = "gc_tombstones"
	DeletedBlobKey   = "gc_deleted"
)

// Metadata is the persisted GC summary metadata record. The version
// decides at load time whether base-snapshot node/tombstone state is
// trustworthy or must be discarded.
type Metadata struct {
	GCVersion int `json:"gcVersion"`
}

// NodeData is the persisted per-node record in the node-table blobs.
type NodeData struct {
	OutboundRoutes []string `json:"outboundRoutes"`

	// UnreferencedTimestampMs is present only for unreferenced nodes.
	UnreferencedTimestampMs *int64 `json:"unreferencedTimestampMs,omitempty"`
}

// nodeTableChunk is one serialized node-table blob plus its fingerprint.
type nodeTableChunk struct {
	data []byte
	hash string
}

// treeChunkKey names the i-th of n node-table blobs.
func treeChunkKey(i, n int) string {
	if n <= 1 {
		return TreeBlobKey
	}
	return fmt.Sprintf("%s_%d", TreeBlobKey, i)
}

// buildNodeTable merges the latest outbound routes with the tracked
// unreferenced timestamps into the persisted node-table form.
func buildNodeTable(routes map[string][]string, tracker *UnreferencedStateTracker) map[string]NodeData {
	table := make(map[string]NodeData, len(routes))
	for path, outbound := range routes {
		nd := NodeData{OutboundRoutes: outbound}
		if state, ok := tracker.State(path); ok {
			ts := state.UnreferencedTimestampMs
			nd.UnreferencedTimestampMs = &ts
		}
		table[path] = nd
	}

	// Tracked nodes absent from the latest reported data (e.g. evicted
	// subtrees) keep their timestamps across sessions.
	for _, path := range tracker.Paths() {
		if _, ok := table[path]; ok {
			continue
		}
		state, _ := tracker.State(path)
		ts := state.UnreferencedTimestampMs
		table[path] = NodeData{UnreferencedTimestampMs: &ts}
	}
	return table
}

// chunkNodeTable splits the node table into at most maxPerBlob entries
// per blob, in sorted path order so the split is deterministic, and
// serializes each chunk. encoding/json writes map keys sorted, so equal
// content always produces equal bytes and equal fingerprints.
func chunkNodeTable(table map[string]NodeData, maxPerBlob int) ([]nodeTableChunk, error) {
	paths := make([]string, 0, len(table))
	for path := range table {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	chunkCount := (len(paths) + maxPerBlob - 1) / maxPerBlob
	if chunkCount == 0 {
		chunkCount = 1
	}

	chunks := make([]nodeTableChunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := i * maxPerBlob
		end := min(start+maxPerBlob, len(paths))

		part := make(map[string]NodeData, end-start)
		for _, path := range paths[start:end] {
			part[path] = table[path]
		}

		data, err := json.Marshal(part)
		if err != nil {
			return nil, fmt.Errorf("encode node table chunk %d: %w", i, err)
		}
		chunks = append(chunks, nodeTableChunk{data: data, hash: fingerprint(data)})
	}

	return chunks, nil
}

// encodeStringSet serializes a path set as a sorted JSON array.
func encodeStringSet(set map[string]struct{}) ([]byte, error) {
	paths := make([]string, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return json.Marshal(paths)
}

// fingerprint returns the hex SHA-256 of data, used for per-blob reuse
// decisions.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
