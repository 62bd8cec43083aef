package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/dittodoc/internal/logger"
	"github.com/marmos91/dittodoc/pkg/config"
	"github.com/marmos91/dittodoc/pkg/metrics"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// setup loads configuration, initializes logging and metrics, and opens
// the configured blob store. Shared by every command that touches a
// container.
func setup(ctx context.Context) (*config.Config, store.BlobStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, nil, err
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	blobStore, err := config.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	return cfg, blobStore, nil
}
