package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittodoc/pkg/gc"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyStoreDefaults(&cfg.Store)
	applyGCDefaults(&cfg.GC)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyStoreDefaults sets blob store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "fs"
	}
	if cfg.Type == "fs" && cfg.FS.Path == "" {
		cfg.FS.Path = "/var/lib/dittodoc/blobs"
	}
	if cfg.Type == "badger" && cfg.Badger.Path == "" {
		cfg.Badger.Path = "/var/lib/dittodoc/badger"
	}
}

// applyGCDefaults sets garbage collection defaults. SweepTimeout has no
// static default: when unset it is derived from session and snapshot
// cache expiry by the engine.
func applyGCDefaults(cfg *GCConfig) {
	if cfg.InactiveTimeout == 0 {
		cfg.InactiveTimeout = gc.DefaultInactiveTimeout
	}
	if cfg.SessionExpiry == 0 {
		cfg.SessionExpiry = gc.DefaultSessionExpiry
	}
	if cfg.SnapshotCacheExpiry == 0 {
		cfg.SnapshotCacheExpiry = gc.DefaultSnapshotCacheExpiry
	}
	if cfg.MaxNodesPerBlob == 0 {
		cfg.MaxNodesPerBlob = gc.DefaultMaxNodesPerBlob
	}
}

// ToEngineConfig converts the GC section to the engine's configuration.
func (c GCConfig) ToEngineConfig() gc.Config {
	return gc.Config{
		InactiveTimeout:      c.InactiveTimeout,
		SessionExpiry:        c.SessionExpiry,
		SnapshotCacheExpiry:  c.SnapshotCacheExpiry,
		SweepTimeout:         c.SweepTimeout,
		SweepGracePeriod:     c.SweepGracePeriod,
		SweepEnabled:         c.SweepEnabled,
		TombstoneEnforcement: c.TombstoneEnforcement,
		StrictInactiveUsage:  c.StrictInactiveUsage,
		MaxNodesPerBlob:      c.MaxNodesPerBlob,
	}
}

// GetDefaultConfig returns a Config struct with all default values
// applied. Useful for generating sample configuration files and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
