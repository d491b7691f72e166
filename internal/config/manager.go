package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/enrolytics/enrolytics/internal/metrics"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("ENROLYTICS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// A missing config file is fine; defaults plus env vars carry the run.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// keep defaults
		} else if os.IsNotExist(err) {
			// keep defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads. Edits that fail
// validation are rejected and the previous configuration stays active.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		prev := m.config
		if err := m.unmarshalConfig(); err != nil {
			metrics.ConfigReloads.WithLabelValues("rejected").Inc()
			return
		}
		m.applyEnvOverrides()
		if len(m.config.Validate()) > 0 {
			m.config = prev
			metrics.ConfigReloads.WithLabelValues("rejected").Inc()
			return
		}
		metrics.ConfigReloads.WithLabelValues("applied").Inc()
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Analysis defaults
	m.viper.SetDefault("analysis.baseline_method", defaults.Analysis.BaselineMethod)
	m.viper.SetDefault("analysis.threshold", defaults.Analysis.Threshold)
	m.viper.SetDefault("analysis.min_history", defaults.Analysis.MinHistory)
	m.viper.SetDefault("analysis.k", defaults.Analysis.K)
	m.viper.SetDefault("analysis.max_iterations", defaults.Analysis.MaxIterations)
	m.viper.SetDefault("analysis.seed", defaults.Analysis.Seed)
	m.viper.SetDefault("analysis.window", defaults.Analysis.Window)
	m.viper.SetDefault("analysis.weights", defaults.Analysis.Weights)
	m.viper.SetDefault("analysis.top_n", defaults.Analysis.TopN)

	// Dataset defaults
	m.viper.SetDefault("dataset.path", defaults.Dataset.Path)

	// Database defaults
	m.viper.SetDefault("database.path", defaults.Database.Path)
	m.viper.SetDefault("database.retain_runs", defaults.Database.RetainRuns)

	// Report defaults
	m.viper.SetDefault("report.dir", defaults.Report.Dir)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	// Metrics defaults
	m.viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	m.viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Analysis
	cfg.Analysis.BaselineMethod = m.viper.GetString("analysis.baseline_method")
	cfg.Analysis.Threshold = m.viper.GetFloat64("analysis.threshold")
	cfg.Analysis.MinHistory = m.viper.GetInt("analysis.min_history")
	cfg.Analysis.K = m.viper.GetInt("analysis.k")
	cfg.Analysis.MaxIterations = m.viper.GetInt("analysis.max_iterations")
	cfg.Analysis.Seed = m.viper.GetInt64("analysis.seed")
	cfg.Analysis.Window = m.viper.GetString("analysis.window")
	cfg.Analysis.Weights = toFloatMap(m.viper.GetStringMap("analysis.weights"))
	cfg.Analysis.TopN = m.viper.GetInt("analysis.top_n")

	// Dataset
	cfg.Dataset.Path = m.viper.GetString("dataset.path")

	// Database
	cfg.Database.Path = m.viper.GetString("database.path")
	cfg.Database.RetainRuns = m.viper.GetInt("database.retain_runs")

	// Report
	cfg.Report.Dir = m.viper.GetString("report.dir")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	// Metrics
	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.Addr = m.viper.GetString("metrics.addr")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for settings
// commonly set per invocation.
func (m *viperConfigManager) applyEnvOverrides() {
	if path := os.Getenv("ENROLYTICS_DATASET"); path != "" {
		m.config.Dataset.Path = path
	}

	if seedEnv := os.Getenv("ENROLYTICS_SEED"); seedEnv != "" {
		if seed, err := strconv.ParseInt(seedEnv, 10, 64); err == nil {
			m.config.Analysis.Seed = seed
		}
	}

	if dir := os.Getenv("ENROLYTICS_REPORT_DIR"); dir != "" {
		m.config.Report.Dir = dir
	}
}

// toFloatMap converts viper's loosely typed map values to float64,
// dropping entries that are not numeric.
func toFloatMap(raw map[string]interface{}) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case float64:
			out[key] = v
		case float32:
			out[key] = float64(v)
		case int:
			out[key] = float64(v)
		case int64:
			out[key] = float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[key] = f
			}
		}
	}
	return out
}
