package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate analysis configuration
	validMethods := map[string]bool{
		"parametric": true,
		"robust":     true,
	}
	if !validMethods[c.Analysis.BaselineMethod] {
		errs = append(errs, &ValidationError{
			Field:   "analysis.baseline_method",
			Message: fmt.Sprintf("invalid method '%s', must be one of: parametric, robust", c.Analysis.BaselineMethod),
		})
	}

	if c.Analysis.Threshold <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.threshold",
			Message: fmt.Sprintf("threshold must be positive, got %g", c.Analysis.Threshold),
		})
	}

	if c.Analysis.MinHistory < 2 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.min_history",
			Message: fmt.Sprintf("min_history must be at least 2, got %d", c.Analysis.MinHistory),
		})
	}

	if c.Analysis.K < 0 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.k",
			Message: fmt.Sprintf("k must be 0 (auto) or positive, got %d", c.Analysis.K),
		})
	}

	if c.Analysis.MaxIterations < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.max_iterations",
			Message: fmt.Sprintf("max_iterations must be at least 1, got %d", c.Analysis.MaxIterations),
		})
	}

	validWindows := map[string]bool{
		"full":   true,
		"latest": true,
	}
	if !validWindows[c.Analysis.Window] {
		errs = append(errs, &ValidationError{
			Field:   "analysis.window",
			Message: fmt.Sprintf("invalid window '%s', must be one of: full, latest", c.Analysis.Window),
		})
	}

	validComponents := map[string]bool{
		"anomaly": true,
		"cluster": true,
		"trend":   true,
	}
	for name, weight := range c.Analysis.Weights {
		if !validComponents[name] {
			errs = append(errs, &ValidationError{
				Field:   "analysis.weights." + name,
				Message: "unknown component, must be one of: anomaly, cluster, trend",
			})
			continue
		}
		if weight < 0 {
			errs = append(errs, &ValidationError{
				Field:   "analysis.weights." + name,
				Message: fmt.Sprintf("weight cannot be negative, got %g", weight),
			})
		}
	}

	if c.Analysis.TopN < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.top_n",
			Message: fmt.Sprintf("top_n must be at least 1, got %d", c.Analysis.TopN),
		})
	}

	// Validate database configuration
	if c.Database.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.path",
			Message: "database path is required",
		})
	}

	if c.Database.RetainRuns < 0 {
		errs = append(errs, &ValidationError{
			Field:   "database.retain_runs",
			Message: fmt.Sprintf("retain_runs cannot be negative, got %d", c.Database.RetainRuns),
		})
	}

	// Validate report configuration
	if c.Report.Dir == "" {
		errs = append(errs, &ValidationError{
			Field:   "report.dir",
			Message: "report directory is required",
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("max_size_mb cannot be negative, got %d", c.Logging.MaxSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_backups",
			Message: fmt.Sprintf("max_backups cannot be negative, got %d", c.Logging.MaxBackups),
		})
	}

	if c.Logging.MaxAgeDays < 0 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_age_days",
			Message: fmt.Sprintf("max_age_days cannot be negative, got %d", c.Logging.MaxAgeDays),
		})
	}

	// Validate metrics configuration
	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			errs = append(errs, &ValidationError{
				Field:   "metrics.addr",
				Message: "addr is required when metrics are enabled",
			})
		} else if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "metrics.addr",
				Message: fmt.Sprintf("invalid address format (expected host:port): %v", err),
			})
		}
	}

	return errs
}
