package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"tplinker/internal/endpoint"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel  // Minimum log level to output
	Format LogFormat // Output format (json or text)
	Output io.Writer // Output destination (defaults to stderr)
	Quiet  bool      // If true, suppress non-error output
}

// Logger wraps slog.Logger. It always writes to the diagnostic stream, never to the
// stream that carries the rendered result document.
type Logger struct {
	logger *slog.Logger
	config Config
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: convertLogLevel(config.Level),
	}

	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		config: config,
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewLogger(Config{Level: LevelError, Output: io.Discard})
}

// convertLogLevel converts our LogLevel to slog.Level
func convertLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	if l.config.Quiet {
		return
	}
	l.logger.Debug(msg, args...)
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	if l.config.Quiet {
		return
	}
	l.logger.Info(msg, args...)
}

// Warn logs a warning
func (l *Logger) Warn(msg string, args ...any) {
	if l.config.Quiet {
		return
	}
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// LogRequest logs one request/reply exchange with a device
func (l *Logger) LogRequest(ep endpoint.Endpoint, requestBytes, replyBytes int, duration time.Duration) {
	l.Debug("device request",
		"address", ep.String(),
		"request_bytes", requestBytes,
		"reply_bytes", replyBytes,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogResolved logs the device kind an endpoint resolved to
func (l *Logger) LogResolved(ep endpoint.Endpoint, kind, model string) {
	l.Info("device resolved",
		"address", ep.String(),
		"kind", kind,
		"model", model,
	)
}

// LogQueryError logs a per-device failure, keyed by the device address
func (l *Logger) LogQueryError(ep endpoint.Endpoint, err error) {
	l.Error("while querying device",
		"address", ep.String(),
		"error", err.Error(),
	)
}

// Record implements the executor's diagnostic sink
func (l *Logger) Record(ep endpoint.Endpoint, err error) {
	l.LogQueryError(ep, err)
}

// LogExecutorStart logs the start of a batch
func (l *Logger) LogExecutorStart(operation string, endpointCount int, concurrency int) {
	l.Info("executor started",
		"operation", operation,
		"endpoint_count", endpointCount,
		"concurrency", concurrency,
	)
}

// LogExecutorComplete logs the end of a batch
func (l *Logger) LogExecutorComplete(operation string, endpointCount, successCount, failureCount int, duration time.Duration) {
	l.Info("executor completed",
		"operation", operation,
		"endpoint_count", endpointCount,
		"success_count", successCount,
		"failure_count", failureCount,
		"total_duration_ms", duration.Milliseconds(),
	)
}

// LogDiscoveryStart logs the opening of a discovery listen window
func (l *Logger) LogDiscoveryStart(destination string, timeout time.Duration) {
	window := "unbounded"
	if timeout > 0 {
		window = timeout.String()
	}
	l.Info("discovery started",
		"destination", destination,
		"window", window,
	)
}

// LogDiscoveryReply logs one distinct discovery reply
func (l *Logger) LogDiscoveryReply(from endpoint.Endpoint, size int) {
	l.Debug("discovery reply",
		"address", from.String(),
		"bytes", size,
	)
}

// LogDiscoveryComplete logs the end of a discovery listen window
func (l *Logger) LogDiscoveryComplete(count int) {
	l.Info("discovery completed",
		"device_count", count,
	)
}

// LogConfigLoad logs configuration loading events
func (l *Logger) LogConfigLoad(source string) {
	l.Info("configuration loaded",
		"source", source,
	)
}

// LogTargetParsing logs address parsing information
func (l *Logger) LogTargetParsing(source string, count int) {
	l.Info("addresses parsed",
		"source", source,
		"count", count,
	)
}

// IsQuiet returns whether the logger is in quiet mode
func (l *Logger) IsQuiet() bool {
	return l.config.Quiet
}

// NewLoggerFromConfig creates a logger from application configuration
func NewLoggerFromConfig(logLevel, logFormat string, quiet bool, output io.Writer) *Logger {
	level := LogLevel(logLevel)
	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		level = LevelError
	}

	format := LogFormat(logFormat)
	if format != FormatJSON {
		format = FormatText
	}

	return NewLogger(Config{
		Level:  level,
		Format: format,
		Output: output,
		Quiet:  quiet,
	})
}
