package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/internal/telemetry"
	"github.com/marmos91/dittodoc/pkg/config"
	"github.com/marmos91/dittodoc/pkg/container"
	"github.com/marmos91/dittodoc/pkg/gc"
	"github.com/marmos91/dittodoc/pkg/metrics"
	metricsprom "github.com/marmos91/dittodoc/pkg/metrics/prometheus"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

var (
	serveContainer string
	serveGraphFile string
	serveInterval  time.Duration
	serveFull      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the GC maintenance loop for a container",
	Long: `Run the garbage-collection maintenance loop for a container.

Every interval the loop reloads the exported reference graph, opens a
summarizer session against the latest persisted summary, runs one GC
pass, and uploads a fresh summary. The configuration file is watched
for changes; logging settings take effect without a restart.

When metrics are enabled, Prometheus metrics are served on /metrics.

Examples:
  # Re-run GC every 5 minutes from a continuously updated export
  dittodoc serve --container books --graph /var/lib/dittodoc/export.json

  # Custom interval
  dittodoc serve --container books --graph export.json --interval 30s`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveContainer, "container", "", "Container identifier (required)")
	serveCmd.Flags().StringVar(&serveGraphFile, "graph", "", "Path to the exported graph JSON file (required)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 5*time.Minute, "Time between GC passes")
	serveCmd.Flags().BoolVar(&serveFull, "full", false, "Treat the export as the complete graph (full GC)")
	_ = serveCmd.MarkFlagRequired("container")
	_ = serveCmd.MarkFlagRequired("graph")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, blobStore, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = blobStore.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittodoc",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = telemetryShutdown(shutdownCtx)
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittodoc",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() { _ = profilingShutdown() }()

	// GC thresholds picked up by the next pass on config reload.
	var engineCfg atomic.Pointer[gc.Config]
	initial := cfg.GC.ToEngineConfig()
	engineCfg.Store(&initial)

	if configFile := GetConfigFile(); configFile != "" {
		watcher, err := config.NewWatcher(configFile, func(next *config.Config) {
			nextCfg := next.GC.ToEngineConfig()
			engineCfg.Store(&nextCfg)
		})
		if err != nil {
			return fmt.Errorf("failed to watch config file: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("config watcher stopped", logger.KeyError, err)
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
	}
	if metricsServer != nil {
		logger.Info("metrics server listening", "port", cfg.Metrics.Port)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logger.KeyError, err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("gc maintenance loop started",
		logger.KeyContainer, serveContainer,
		"interval", serveInterval.String(),
		"graph", serveGraphFile)

	// One sink for the whole loop: Prometheus collectors register once.
	gcSink := metricsprom.NewGCMetrics()

	ticker := time.NewTicker(serveInterval)
	defer ticker.Stop()

	for {
		if err := runMaintenancePass(ctx, blobStore, *engineCfg.Load(), gcSink); err != nil {
			logger.Error("gc pass failed",
				logger.KeyContainer, serveContainer,
				logger.KeyError, err)
		}

		select {
		case <-ctx.Done():
			logger.Info("gc maintenance loop stopped", logger.KeyContainer, serveContainer)
			return nil
		case <-ticker.C:
		}
	}
}

// runMaintenancePass opens a fresh session, replays the current graph
// export, runs one GC pass, and uploads the resulting summary.
func runMaintenancePass(ctx context.Context, blobStore store.BlobStore, engineCfg gc.Config, sink gc.Metrics) error {
	graph, err := readGraphExport(serveGraphFile)
	if err != nil {
		return err
	}

	session, err := container.NewSession(ctx, serveContainer, blobStore, container.SessionOptions{
		GC:      engineCfg,
		Metrics: sink,
	})
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	if err := populateDocument(session.Document(), graph); err != nil {
		return fmt.Errorf("load graph export: %w", err)
	}

	stats, err := session.RunGC(ctx, gc.RunOptions{FullGC: serveFull})
	if err != nil {
		return err
	}

	seq, err := session.Summarize(ctx, serveFull)
	if err != nil {
		return fmt.Errorf("upload summary: %w", err)
	}

	logger.Info("gc pass completed",
		logger.KeyContainer, serveContainer,
		logger.KeyRunID, stats.RunID,
		logger.KeyCount, stats.Total.Sum(),
		"deleted", stats.Deleted.Sum(),
		"summary_sequence", seq)
	return nil
}
