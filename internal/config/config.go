package config

import "context"

// Package config provides configuration management for enrolytics.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading for analysis settings
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (ENROLYTICS_* prefix)
//   2. YAML config file (default: enrolytics.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Analysis
//      - baseline_method: "parametric" | "robust"
//      - threshold: anomaly flag distance in spread units
//      - min_history: prior periods required before evaluation
//      - k: cluster count (0 = choose by silhouette)
//      - max_iterations: k-means iteration cap
//      - seed: RNG seed for clustering
//      - window: "full" | "latest" feature aggregation
//      - weights: risk component weights (anomaly/cluster/trend)
//      - top_n: findings kept per insight category
//
//   2. Dataset
//      - path: input CSV file
//
//   3. Database
//      - path: SQLite file for run history
//      - retain_runs: keep only the last N runs (0 = keep all)
//
//   4. Report
//      - dir: directory for per-run report output
//
//   5. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//      - file: audit log path ("" = stderr only)
//      - max_size_mb, max_backups, max_age_days: rotation policy
//
//   6. Metrics
//      - enabled: expose Prometheus metrics
//      - addr: listen address for /metrics
//
// Config struct contains all configuration fields
type Config struct {
	// Analysis configuration
	Analysis struct {
		BaselineMethod string
		Threshold      float64
		MinHistory     int
		K              int
		MaxIterations  int
		Seed           int64
		Window         string
		Weights        map[string]float64
		TopN           int
	}

	// Dataset configuration
	Dataset struct {
		Path string
	}

	// Database configuration
	Database struct {
		Path       string
		RetainRuns int
	}

	// Report configuration
	Report struct {
		Dir string
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// Metrics configuration
	Metrics struct {
		Enabled bool
		Addr    string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("enrolytics.yaml")
}
