// Package snapshot persists container summaries to a blob store and
// loads base snapshots back. Handle entries in a summary tree are
// resolved at upload time by copying the referenced blob from the
// previously uploaded summary, so every persisted summary is
// self-contained.
package snapshot

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/pkg/gc"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
	"github.com/marmos91/dittodoc/pkg/summary"
)

// Manager persists one container's summaries. Summary blobs are stored
// under containers/<id>/summaries/<seq>/<entryKey>.
type Manager struct {
	store       store.BlobStore
	containerID string

	mu      sync.Mutex
	lastSeq int64 // most recently uploaded sequence number, -1 when none
}

// NewManager creates a manager for the given container.
func NewManager(s store.BlobStore, containerID string) *Manager {
	return &Manager{
		store:       s,
		containerID: containerID,
		lastSeq:     -1,
	}
}

// seqPrefix returns the key prefix of one summary's blobs.
func (m *Manager) seqPrefix(seq int64) string {
	return path.Join("containers", m.containerID, "summaries", strconv.FormatInt(seq, 10)) + "/"
}

// summariesPrefix returns the key prefix of all summaries.
func (m *Manager) summariesPrefix() string {
	return path.Join("containers", m.containerID, "summaries") + "/"
}

// UploadSummary persists the summary tree at sequence number seq. Handle
// entries are resolved by copying the blob with the same entry key from
// the previously uploaded summary; a handle with no prior upload to
// point at is an error.
func (m *Manager) UploadSummary(ctx context.Context, seq int64, tree *summary.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	prefix := m.seqPrefix(seq)

	for _, key := range tree.Keys() {
		targetKey := prefix + key

		if data, ok := tree.Blob(key); ok {
			if err := m.store.WriteBlob(ctx, targetKey, data); err != nil {
				return fmt.Errorf("upload summary blob %q: %w", key, err)
			}
			continue
		}

		// Handle: copy from the previous upload.
		if m.lastSeq < 0 {
			return fmt.Errorf("summary entry %q is a handle but no prior summary exists", key)
		}
		sourceKey := m.seqPrefix(m.lastSeq) + key
		data, err := m.store.ReadBlob(ctx, sourceKey)
		if err != nil {
			return fmt.Errorf("resolve summary handle %q: %w", key, err)
		}
		if err := m.store.WriteBlob(ctx, targetKey, data); err != nil {
			return fmt.Errorf("upload resolved handle %q: %w", key, err)
		}
	}

	m.lastSeq = seq

	fresh, reused := tree.Counts()
	logger.Info("summary uploaded",
		logger.KeyContainer, m.containerID,
		"sequence", seq,
		"blobs_fresh", fresh,
		"blobs_reused", reused,
		logger.KeyDurationMs, logger.Duration(start))
	return nil
}

// LoadBase returns the base snapshot for the summary at seq: entry keys
// mapped to the blob ids readable through ReadAndParseBlob.
func (m *Manager) LoadBase(ctx context.Context, seq int64) (*gc.BaseSnapshot, error) {
	prefix := m.seqPrefix(seq)
	keys, err := m.store.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list summary blobs: %w", err)
	}

	ids := make(map[string]string, len(keys))
	for _, key := range keys {
		ids[strings.TrimPrefix(key, prefix)] = key
	}

	m.mu.Lock()
	if seq > m.lastSeq {
		m.lastSeq = seq
	}
	m.mu.Unlock()

	return &gc.BaseSnapshot{BlobIDs: ids}, nil
}

// LatestSequence returns the highest uploaded sequence number, or -1 when
// no summary exists.
func (m *Manager) LatestSequence(ctx context.Context) (int64, error) {
	prefix := m.summariesPrefix()
	keys, err := m.store.ListByPrefix(ctx, prefix)
	if err != nil {
		return -1, fmt.Errorf("list summaries: %w", err)
	}

	latest := int64(-1)
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		seqStr, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		seq, err := strconv.ParseInt(seqStr, 10, 64)
		if err != nil {
			continue
		}
		if seq > latest {
			latest = seq
		}
	}
	return latest, nil
}

// Sequences returns all uploaded sequence numbers, sorted ascending.
func (m *Manager) Sequences(ctx context.Context) ([]int64, error) {
	prefix := m.summariesPrefix()
	keys, err := m.store.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	seen := make(map[int64]struct{})
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		seqStr, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if seq, err := strconv.ParseInt(seqStr, 10, 64); err == nil {
			seen[seq] = struct{}{}
		}
	}

	seqs := make([]int64, 0, len(seen))
	for seq := range seen {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// PruneBefore deletes all summaries with a sequence number lower than
// keep.
func (m *Manager) PruneBefore(ctx context.Context, keep int64) error {
	seqs, err := m.Sequences(ctx)
	if err != nil {
		return err
	}

	var pruned int
	for _, seq := range seqs {
		if seq >= keep {
			continue
		}
		if err := m.store.DeleteByPrefix(ctx, m.seqPrefix(seq)); err != nil {
			return fmt.Errorf("prune summary %d: %w", seq, err)
		}
		pruned++
	}

	if pruned > 0 {
		logger.Info("old summaries pruned",
			logger.KeyContainer, m.containerID,
			logger.KeyCount, pruned)
	}
	return nil
}

// ReadAndParseBlob reads the blob with the given id and JSON-decodes it
// into v. Satisfies the blob-reading part of the GC runtime surface.
func (m *Manager) ReadAndParseBlob(ctx context.Context, id string, v any) error {
	return store.ReadAndParse(ctx, m.store, id, v)
}
