package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittodoc/internal/cli/prompt"
	"github.com/marmos91/dittodoc/pkg/snapshot"
)

var (
	pruneContainer string
	pruneKeep      int
	pruneYes       bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old GC summaries for a container",
	Long: `Delete old GC summaries for a container, keeping only the most
recent ones.

Older summaries only serve as handle-resolution baselines for clients
that have not caught up; once every client has refreshed past a
sequence it can be removed.

Examples:
  # Keep the 3 most recent summaries
  dittodoc prune --container books --keep 3

  # Skip the confirmation prompt
  dittodoc prune --container books --keep 3 --yes`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().StringVar(&pruneContainer, "container", "", "Container identifier (required)")
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 3, "Number of most recent summaries to keep")
	pruneCmd.Flags().BoolVarP(&pruneYes, "yes", "y", false, "Skip the confirmation prompt")
	_ = pruneCmd.MarkFlagRequired("container")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if pruneKeep < 1 {
		return fmt.Errorf("--keep must be at least 1")
	}

	_, blobStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = blobStore.Close() }()

	manager := snapshot.NewManager(blobStore, pruneContainer)

	seqs, err := manager.Sequences(ctx)
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}
	if len(seqs) <= pruneKeep {
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing to prune: %d summaries stored, keeping %d\n", len(seqs), pruneKeep)
		return nil
	}

	cutoff := seqs[len(seqs)-pruneKeep]
	toDelete := len(seqs) - pruneKeep

	if !pruneYes {
		ok, err := prompt.Confirm(
			fmt.Sprintf("Delete %d summaries of container %q below sequence %d?", toDelete, pruneContainer, cutoff))
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := manager.PruneBefore(ctx, cutoff); err != nil {
		return fmt.Errorf("failed to prune summaries: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d summaries, kept sequences %v\n", toDelete, seqs[len(seqs)-pruneKeep:])
	return nil
}
