package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/enrolytics/enrolytics/internal/analytics"
	"github.com/enrolytics/enrolytics/internal/audit"
	"github.com/enrolytics/enrolytics/internal/config"
	"github.com/enrolytics/enrolytics/internal/models"
	"github.com/enrolytics/enrolytics/internal/store"
)

// app carries the flags and wired components shared by all commands.
// Commands that need configuration and loggers call setup first and
// close when done.
type app struct {
	configPath string
	timeout    time.Duration

	stdout io.Writer
	stderr io.Writer

	cfg   *config.Config
	log   *zap.Logger
	audit audit.Logger
}

// NewRootCommand builds the enrolytics command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO builds the command tree with explicit output
// streams, used by tests.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(out, errOut)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:   "enrolytics",
		Short: "Analytics over administrative enrolment records",
		Long: "enrolytics ingests enrolment CSV exports, flags per-record anomalies against\n" +
			"expanding-window baselines, clusters regions by behavior, scores regional risk,\n" +
			"and surfaces ranked findings as reports and persisted runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "enrolytics.yaml", "path to the configuration file")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "abort the command after this duration (0 disables)")

	cmd.AddCommand(
		newAnalyzeCmd(a),
		newSampleCmd(a),
		newRunsCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)

	cmd.SetErrPrefix("enrolytics: ")
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

// setup loads configuration and opens the shared loggers.
func (a *app) setup(ctx context.Context) error {
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	a.cfg = mgr.Get(ctx)

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: auditPathFor(a.cfg.Logging.File),
		AppLogPath:   a.cfg.Logging.File,
		MaxSize:      a.cfg.Logging.MaxSizeMB,
		MaxBackups:   a.cfg.Logging.MaxBackups,
		MaxAge:       a.cfg.Logging.MaxAgeDays,
		Compress:     true,
		LogLevel:     a.cfg.Logging.Level,
		Format:       a.cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("open loggers: %w", err)
	}
	a.audit = auditLog
	a.log = auditLog.AppLogger()
	return nil
}

// close flushes and releases whatever setup opened.
func (a *app) close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

// commandContext applies the --timeout flag to the command context.
func (a *app) commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(parent, a.timeout)
	}
	return context.WithCancel(parent)
}

// analyticsConfig binds the analysis section onto the immutable value
// the pipeline consumes.
func (a *app) analyticsConfig() analytics.Config {
	weights := make(map[models.RiskComponent]float64, len(a.cfg.Analysis.Weights))
	for name, w := range a.cfg.Analysis.Weights {
		weights[models.RiskComponent(name)] = w
	}
	return analytics.Config{
		BaselineMethod: a.cfg.Analysis.BaselineMethod,
		Threshold:      a.cfg.Analysis.Threshold,
		MinHistory:     a.cfg.Analysis.MinHistory,
		K:              a.cfg.Analysis.K,
		MaxIterations:  a.cfg.Analysis.MaxIterations,
		Seed:           a.cfg.Analysis.Seed,
		Window:         a.cfg.Analysis.Window,
		Weights:        weights,
		TopN:           a.cfg.Analysis.TopN,
	}
}

// openStore opens the results database named by the configuration.
func (a *app) openStore() (store.Store, error) {
	if a.cfg.Database.Path == "" {
		return nil, fmt.Errorf("no results database configured")
	}
	st, err := store.NewSQLiteStore(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open results store: %w", err)
	}
	return st, nil
}

// auditPathFor places the audit log next to the application log.
func auditPathFor(appLogPath string) string {
	if appLogPath == "" {
		return filepath.Join("logs", "audit.log")
	}
	return filepath.Join(filepath.Dir(appLogPath), "audit.log")
}
