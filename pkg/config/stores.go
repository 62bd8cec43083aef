package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittodoc/internal/logger"
	metricsprom "github.com/marmos91/dittodoc/pkg/metrics/prometheus"
	"github.com/marmos91/dittodoc/pkg/snapshot/store"
	badgerstore "github.com/marmos91/dittodoc/pkg/snapshot/store/badger"
	fsstore "github.com/marmos91/dittodoc/pkg/snapshot/store/fs"
	memorystore "github.com/marmos91/dittodoc/pkg/snapshot/store/memory"
	s3store "github.com/marmos91/dittodoc/pkg/snapshot/store/s3"
)

// OpenStore instantiates the configured blob store backend. When metrics
// are enabled the store is wrapped with per-operation instrumentation.
func OpenStore(ctx context.Context, cfg StoreConfig) (store.BlobStore, error) {
	logger.Debug("opening blob store", logger.KeyStoreType, cfg.Type)

	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return store.Instrument(s, metricsprom.NewStoreMetrics(cfg.Type)), nil
}

func openStore(ctx context.Context, cfg StoreConfig) (store.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return memorystore.New(), nil

	case "fs":
		return fsstore.New(fsstore.Config{Root: cfg.FS.Path})

	case "badger":
		return badgerstore.New(badgerstore.Config{
			Path:       cfg.Badger.Path,
			SyncWrites: cfg.Badger.SyncWrites,
		})

	case "s3":
		return s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			KeyPrefix:      cfg.S3.KeyPrefix,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
