package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittodoc/internal/cli/output"
	"github.com/marmos91/dittodoc/pkg/container"
	"github.com/marmos91/dittodoc/pkg/gc"
	metricsprom "github.com/marmos91/dittodoc/pkg/metrics/prometheus"
)

var (
	gcContainer string
	gcGraphFile string
	gcFull      bool
	gcSummarize bool
	gcOutput    string
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run a garbage collection pass over an exported graph",
	Long: `Run one garbage collection pass for a container against an exported
reference graph.

The graph file is a JSON export of the container's current nodes and
outbound references:

  {
    "roots": ["/books"],
    "nodes": {
      "/books":          {"type": "datastore", "routes": ["/books/page-1"]},
      "/books/page-1":   {"type": "datastore", "routes": ["/blobs/cover"]},
      "/blobs/cover":    {"type": "blob"},
      "/blobs/orphaned": {"type": "blob"}
    }
  }

The pass loads the container's latest persisted summary as base state,
marks reachability from the root, advances unreferenced-node phases, and
optionally uploads a fresh summary with --summarize.

Examples:
  # Dry pass: collect and print statistics only
  dittodoc gc --container books --graph export.json

  # Treat the export as the complete graph and persist the result
  dittodoc gc --container books --graph export.json --full --summarize`,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().StringVar(&gcContainer, "container", "", "Container identifier (required)")
	gcCmd.Flags().StringVar(&gcGraphFile, "graph", "", "Path to the exported graph JSON file (required)")
	gcCmd.Flags().BoolVar(&gcFull, "full", false, "Treat the export as the complete graph (full GC)")
	gcCmd.Flags().BoolVar(&gcSummarize, "summarize", false, "Upload a new GC summary after the pass")
	gcCmd.Flags().StringVarP(&gcOutput, "output", "o", "table", "Output format (table|json|yaml)")
	_ = gcCmd.MarkFlagRequired("container")
	_ = gcCmd.MarkFlagRequired("graph")
}

// graphExport is the on-disk format of an exported reference graph.
type graphExport struct {
	Roots []string             `json:"roots"`
	Nodes map[string]graphNode `json:"nodes"`
}

type graphNode struct {
	Type        string   `json:"type"`
	Routes      []string `json:"routes,omitempty"`
	PackagePath []string `json:"packagePath,omitempty"`
}

func runGC(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := output.ParseFormat(gcOutput)
	if err != nil {
		return err
	}

	graph, err := readGraphExport(gcGraphFile)
	if err != nil {
		return err
	}

	cfg, blobStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = blobStore.Close() }()

	session, err := container.NewSession(ctx, gcContainer, blobStore, container.SessionOptions{
		GC:      cfg.GC.ToEngineConfig(),
		Metrics: metricsprom.NewGCMetrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	if err := populateDocument(session.Document(), graph); err != nil {
		return fmt.Errorf("failed to load graph export: %w", err)
	}

	stats, err := session.RunGC(ctx, gc.RunOptions{FullGC: gcFull})
	if err != nil {
		return fmt.Errorf("gc pass failed: %w", err)
	}

	var uploadedSeq int64 = -1
	if gcSummarize {
		uploadedSeq, err = session.Summarize(ctx, gcFull)
		if err != nil {
			return fmt.Errorf("failed to upload summary: %w", err)
		}
	}

	return printRunResult(cmd, format, stats, uploadedSeq)
}

// readGraphExport loads and decodes the graph export file.
func readGraphExport(path string) (*graphExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	var graph graphExport
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("failed to parse graph file: %w", err)
	}
	if len(graph.Nodes) == 0 {
		return nil, fmt.Errorf("graph file %s contains no nodes", path)
	}
	return &graph, nil
}

// populateDocument replays the exported graph into the session document.
// Nodes are created before references so routes to later nodes resolve.
func populateDocument(doc *container.Document, graph *graphExport) error {
	paths := make([]string, 0, len(graph.Nodes))
	for path := range graph.Nodes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		node := graph.Nodes[path]
		if err := doc.AddNode(path, gc.NodeType(node.Type), node.PackagePath); err != nil {
			return fmt.Errorf("node %s: %w", path, err)
		}
	}
	for _, root := range graph.Roots {
		if err := doc.AddRoot(root); err != nil {
			return fmt.Errorf("root %s: %w", root, err)
		}
	}
	for _, path := range paths {
		for _, route := range graph.Nodes[path].Routes {
			if err := doc.AddReference(path, route); err != nil {
				return fmt.Errorf("reference %s -> %s: %w", path, route, err)
			}
		}
	}
	return nil
}

// runResult is the serializable outcome of a gc pass.
type runResult struct {
	RunID           string `json:"run_id" yaml:"run_id"`
	NodesTotal      int    `json:"nodes_total" yaml:"nodes_total"`
	Unreferenced    int    `json:"unreferenced" yaml:"unreferenced"`
	Tombstoned      int    `json:"tombstoned" yaml:"tombstoned"`
	Deleted         int    `json:"deleted" yaml:"deleted"`
	LifetimeRuns    int    `json:"lifetime_runs" yaml:"lifetime_runs"`
	LifetimeDeleted int    `json:"lifetime_deleted" yaml:"lifetime_deleted"`
	SummarySeq      *int64 `json:"summary_sequence,omitempty" yaml:"summary_sequence,omitempty"`
}

func printRunResult(cmd *cobra.Command, format output.Format, stats *gc.Stats, uploadedSeq int64) error {
	result := runResult{
		RunID:           stats.RunID,
		NodesTotal:      stats.Total.Sum(),
		Unreferenced:    stats.Unreferenced.Sum(),
		Tombstoned:      stats.Tombstoned.Sum(),
		Deleted:         stats.Deleted.Sum(),
		LifetimeRuns:    stats.LifetimeRuns,
		LifetimeDeleted: stats.LifetimeDeleted.Sum(),
	}
	if uploadedSeq >= 0 {
		result.SummarySeq = &uploadedSeq
	}

	w := cmd.OutOrStdout()
	if format != output.FormatTable {
		return output.NewPrinter(w, format).Print(result)
	}

	pairs := [][2]string{
		{"Run", result.RunID},
		{"Lifetime runs", fmt.Sprintf("%d", result.LifetimeRuns)},
		{"Lifetime deleted", fmt.Sprintf("%d", result.LifetimeDeleted)},
	}
	if result.SummarySeq != nil {
		pairs = append(pairs, [2]string{"Summary sequence", fmt.Sprintf("%d", *result.SummarySeq)})
	}
	if err := output.KeyValues(w, pairs); err != nil {
		return err
	}
	fmt.Fprintln(w)

	var counts output.NodeCounts
	counts.Add("Total", stats.Total)
	counts.Add("Unreferenced", stats.Unreferenced)
	counts.Add("Tombstoned", stats.Tombstoned)
	counts.Add("Deleted", stats.Deleted)
	return output.NewPrinter(w, format).Print(&counts)
}
