package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event. An event without a correlation id
	// inherits the one carried by ctx, so every event of one command
	// invocation correlates.
	Log(ctx context.Context, event *Event) error

	// LogRun logs analysis run lifecycle events. The run id is only
	// known once the pipeline returns, so LogRunStarted identifies the
	// run via the ctx correlation id alone.
	LogRunStarted(ctx context.Context, records int) error
	LogRunCompleted(ctx context.Context, runID string, duration time.Duration) error
	LogRunFailed(ctx context.Context, runID string, err error) error

	// LogDataset logs dataset lifecycle events
	LogDatasetLoaded(ctx context.Context, path string, records int) error
	LogDatasetGenerated(ctx context.Context, path string, records int) error

	// LogReportWritten logs report output events
	LogReportWritten(ctx context.Context, runID, dir string) error

	// AppLogger returns the shared application logger that the rest of
	// the system logs through.
	AppLogger() *zap.Logger

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string

	// Format selects the application log encoding: "json" or "text".
	// The audit channel is always JSON.
	Format string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/enrolytics.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
		Format:       "json",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Application logger: rotated file when a path is configured,
	// stderr otherwise
	var appSink zapcore.WriteSyncer
	if config.AppLogPath != "" {
		appSink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AppLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	} else {
		appSink = zapcore.Lock(os.Stderr)
	}

	appEncoder := zapcore.NewJSONEncoder(encoderConfig)
	if config.Format == "text" {
		appEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	appCore := zapcore.NewCore(appEncoder, appSink, level)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = GetCorrelationID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogRunStarted logs when an analysis run starts
func (l *auditLogger) LogRunStarted(ctx context.Context, records int) error {
	event := NewEvent(EventRunStarted).
		WithResult(ResultSuccess).
		WithMetadata("records", records).
		WithDescription(fmt.Sprintf("Analysis run started over %d records", records))

	return l.Log(ctx, event)
}

// LogRunCompleted logs when an analysis run completes
func (l *auditLogger) LogRunCompleted(ctx context.Context, runID string, duration time.Duration) error {
	event := NewEvent(EventRunCompleted).
		WithResource(runID, "run").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Analysis run %s completed", runID))

	return l.Log(ctx, event)
}

// LogRunFailed logs when an analysis run fails. runID may be empty
// when the run failed before an id was assigned.
func (l *auditLogger) LogRunFailed(ctx context.Context, runID string, err error) error {
	event := NewEvent(EventRunFailed).
		WithError(err, "run_error").
		WithDescription("Analysis run failed")
	if runID != "" {
		event = event.WithResource(runID, "run").
			WithDescription(fmt.Sprintf("Analysis run %s failed", runID))
	}

	return l.Log(ctx, event)
}

// LogDatasetLoaded logs when a dataset is read from disk
func (l *auditLogger) LogDatasetLoaded(ctx context.Context, path string, records int) error {
	event := NewEvent(EventDatasetLoaded).
		WithResource(path, "dataset").
		WithResult(ResultSuccess).
		WithMetadata("records", records).
		WithDescription(fmt.Sprintf("Dataset %s loaded with %d records", path, records))

	return l.Log(ctx, event)
}

// LogDatasetGenerated logs when a synthetic dataset is written
func (l *auditLogger) LogDatasetGenerated(ctx context.Context, path string, records int) error {
	event := NewEvent(EventDatasetGenerated).
		WithResource(path, "dataset").
		WithResult(ResultSuccess).
		WithMetadata("records", records).
		WithDescription(fmt.Sprintf("Sample dataset %s generated with %d records", path, records))

	return l.Log(ctx, event)
}

// LogReportWritten logs when a run report is written
func (l *auditLogger) LogReportWritten(ctx context.Context, runID, dir string) error {
	event := NewEvent(EventReportWritten).
		WithResource(dir, "report").
		WithResult(ResultSuccess).
		WithMetadata("run_id", runID).
		WithDescription(fmt.Sprintf("Report for run %s written to %s", runID, dir))

	return l.Log(ctx, event)
}

// AppLogger returns the shared application logger.
func (l *auditLogger) AppLogger() *zap.Logger {
	return l.appLogger
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value("correlation_id").(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, "correlation_id", id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
