package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the dittodoc configuration.
//
// This structure captures the static configuration of the summarizer
// service:
//   - Logging configuration
//   - Telemetry/tracing/profiling configuration
//   - Prometheus metrics server settings
//   - Blob store selection for summary persistence
//   - GC thresholds and enforcement policies
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTODOC_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store selects and configures the blob store backing summary
	// persistence
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// GC contains garbage collection thresholds and policies
	GC GCConfig `mapstructure:"gc" yaml:"gc"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig selects the blob store backend for summary persistence.
type StoreConfig struct {
	// Type selects the backend.
	// Valid values: memory, fs, badger, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory fs badger s3" yaml:"type"`

	// FS configures the filesystem backend (used when Type is "fs")
	FS FSStoreConfig `mapstructure:"fs" yaml:"fs,omitempty"`

	// Badger configures the BadgerDB backend (used when Type is "badger")
	Badger BadgerStoreConfig `mapstructure:"badger" yaml:"badger,omitempty"`

	// S3 configures the S3 backend (used when Type is "s3")
	S3 S3StoreConfig `mapstructure:"s3" yaml:"s3,omitempty"`
}

// FSStoreConfig configures the filesystem blob store.
type FSStoreConfig struct {
	// Path is the root directory blobs are stored under
	Path string `mapstructure:"path" yaml:"path"`
}

// BadgerStoreConfig configures the BadgerDB blob store.
type BadgerStoreConfig struct {
	// Path is the BadgerDB data directory
	Path string `mapstructure:"path" yaml:"path"`

	// SyncWrites makes every write durable before returning
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// S3StoreConfig configures the S3 blob store.
type S3StoreConfig struct {
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (optional, uses SDK default if empty)
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to all blob keys
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// GCConfig contains garbage collection thresholds and policies.
// Timeouts are measured against the container's reference clock, so they
// describe container time, not local wall time.
type GCConfig struct {
	// InactiveTimeout is how long a node must stay unreferenced before it
	// is considered inactive (advisory).
	// Default: 168h (7 days)
	InactiveTimeout time.Duration `mapstructure:"inactive_timeout" yaml:"inactive_timeout"`

	// SessionExpiry is the time bound after which a client session is
	// assumed dead.
	// Default: 10m
	SessionExpiry time.Duration `mapstructure:"session_expiry" yaml:"session_expiry"`

	// SnapshotCacheExpiry is how long stale snapshots may be served from
	// caches.
	// Default: 120h (5 days)
	SnapshotCacheExpiry time.Duration `mapstructure:"snapshot_cache_expiry" yaml:"snapshot_cache_expiry"`

	// SweepTimeout is how long a node must stay unreferenced before its
	// access is denied. When zero it is derived as
	// session_expiry + snapshot_cache_expiry + 24h.
	SweepTimeout time.Duration `mapstructure:"sweep_timeout" yaml:"sweep_timeout,omitempty"`

	// SweepGracePeriod is the operator safety window between tombstoning
	// and physical deletion.
	SweepGracePeriod time.Duration `mapstructure:"sweep_grace_period" yaml:"sweep_grace_period,omitempty"`

	// SweepEnabled allows physical deletion of sweep-ready nodes.
	// Default: false
	SweepEnabled bool `mapstructure:"sweep_enabled" yaml:"sweep_enabled"`

	// TombstoneEnforcement makes access to tombstoned nodes an error.
	// Default: false
	TombstoneEnforcement bool `mapstructure:"tombstone_enforcement" yaml:"tombstone_enforcement"`

	// StrictInactiveUsage makes access to inactive nodes an error instead
	// of a logged event.
	// Default: false
	StrictInactiveUsage bool `mapstructure:"strict_inactive_usage" yaml:"strict_inactive_usage"`

	// MaxNodesPerBlob caps node-table entries per summary blob.
	// Default: 2000
	MaxNodesPerBlob int `mapstructure:"max_nodes_per_blob" validate:"omitempty,gt=0" yaml:"max_nodes_per_blob,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTODOC_*)
//  2. Configuration file
//  3. Default values
//
// configPath may be empty to use the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittodoc init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittodoc <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  dittodoc init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: config files may carry credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DITTODOC_ prefix and underscores
	// Example: DITTODOC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTODOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittodoc/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// durationDecodeHook returns a mapstructure decode hook that converts
// strings to time.Duration, so config files can use "30s", "5m", "168h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// the current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittodoc")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittodoc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
