package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittodoc/internal/cli/output"
	"github.com/marmos91/dittodoc/pkg/gc"
	"github.com/marmos91/dittodoc/pkg/snapshot"
)

var (
	statusContainer string
	statusOutput    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a container's persisted GC state",
	Long: `Display the garbage-collection state persisted for a container.

Reads the latest GC summary from the configured blob store and reports
the summary sequence history, schema version, and the tombstoned and
deleted node sets.

Examples:
  # Inspect a container
  dittodoc status --container books

  # Output as JSON
  dittodoc status --container books --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusContainer, "container", "", "Container identifier (required)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
	_ = statusCmd.MarkFlagRequired("container")
}

// containerStatus is the serializable GC state of one container.
type containerStatus struct {
	Container       string   `json:"container" yaml:"container"`
	LatestSequence  int64    `json:"latest_sequence" yaml:"latest_sequence"`
	Sequences       []int64  `json:"sequences" yaml:"sequences"`
	GCVersion       int      `json:"gc_version,omitempty" yaml:"gc_version,omitempty"`
	TrackedNodes    int      `json:"tracked_nodes" yaml:"tracked_nodes"`
	TombstonedNodes []string `json:"tombstoned_nodes" yaml:"tombstoned_nodes"`
	DeletedNodes    []string `json:"deleted_nodes" yaml:"deleted_nodes"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	_, blobStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = blobStore.Close() }()

	manager := snapshot.NewManager(blobStore, statusContainer)

	seq, err := manager.LatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("failed to find latest summary: %w", err)
	}

	status := containerStatus{
		Container:      statusContainer,
		LatestSequence: seq,
	}

	if seq >= 0 {
		status.Sequences, err = manager.Sequences(ctx)
		if err != nil {
			return fmt.Errorf("failed to list summaries: %w", err)
		}
		if err := loadSummaryState(cmd, manager, seq, &status); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if format != output.FormatTable {
		return output.NewPrinter(w, format).Print(status)
	}

	if seq < 0 {
		fmt.Fprintf(w, "No GC summaries found for container %q\n", statusContainer)
		return nil
	}

	return output.KeyValues(w, [][2]string{
		{"Container", status.Container},
		{"Latest sequence", fmt.Sprintf("%d", status.LatestSequence)},
		{"Stored summaries", fmt.Sprintf("%d", len(status.Sequences))},
		{"GC schema version", fmt.Sprintf("%d", status.GCVersion)},
		{"Tracked nodes", fmt.Sprintf("%d", status.TrackedNodes)},
		{"Tombstoned", fmt.Sprintf("%d", len(status.TombstonedNodes))},
		{"Deleted", fmt.Sprintf("%d", len(status.DeletedNodes))},
	})
}

// loadSummaryState reads the summary fragment blobs at seq into status.
func loadSummaryState(cmd *cobra.Command, manager *snapshot.Manager, seq int64, status *containerStatus) error {
	ctx := cmd.Context()

	base, err := manager.LoadBase(ctx, seq)
	if err != nil {
		return fmt.Errorf("failed to load summary %d: %w", seq, err)
	}

	if id, ok := base.BlobIDs[gc.MetadataBlobKey]; ok {
		var meta gc.Metadata
		if err := manager.ReadAndParseBlob(ctx, id, &meta); err != nil {
			return fmt.Errorf("failed to read summary metadata: %w", err)
		}
		status.GCVersion = meta.GCVersion
	}

	for key, id := range base.BlobIDs {
		if !strings.HasPrefix(key, gc.TreeBlobKey) {
			continue
		}
		var table map[string]gc.NodeData
		if err := manager.ReadAndParseBlob(ctx, id, &table); err != nil {
			return fmt.Errorf("failed to read node table %s: %w", key, err)
		}
		status.TrackedNodes += len(table)
	}

	if id, ok := base.BlobIDs[gc.TombstoneBlobKey]; ok {
		if err := manager.ReadAndParseBlob(ctx, id, &status.TombstonedNodes); err != nil {
			return fmt.Errorf("failed to read tombstone set: %w", err)
		}
	}
	if id, ok := base.BlobIDs[gc.DeletedBlobKey]; ok {
		if err := manager.ReadAndParseBlob(ctx, id, &status.DeletedNodes); err != nil {
			return fmt.Errorf("failed to read deleted set: %w", err)
		}
	}

	return nil
}
