package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Analysis defaults
	cfg.Analysis.BaselineMethod = "parametric"
	cfg.Analysis.Threshold = 3.0
	cfg.Analysis.MinHistory = 3
	cfg.Analysis.K = 0 // auto-select by silhouette
	cfg.Analysis.MaxIterations = 300
	cfg.Analysis.Seed = 42
	cfg.Analysis.Window = "full"
	cfg.Analysis.Weights = map[string]float64{}
	cfg.Analysis.TopN = 5

	// Dataset defaults
	cfg.Dataset.Path = ""

	// Database defaults
	cfg.Database.Path = "enrolytics.db"
	cfg.Database.RetainRuns = 0 // keep all

	// Report defaults
	cfg.Report.Dir = "reports"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	// Metrics defaults
	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = ":9090"

	return cfg
}
