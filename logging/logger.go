// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug
// any structured logger. It also offers a richer ConvoLogger with contextual
// helpers (component, session, request) and domain-specific helpers for
// pipeline stages and tool calls.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user-friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across convopipe.
// Users can provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Used as the default in constructors
// so logging stays opt-in.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures construction of a ConvoLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
	SessionID string
	RequestID string
}

// DefaultLoggerConfig returns a baseline JSON info-level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// ConvoLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. Cheap to copy via the With* methods.
type ConvoLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	sessionID string
	requestID string
}

// NewLogger builds a ConvoLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ConvoLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &ConvoLogger{
		logger:    slog.New(handler),
		level:     cfg.Level,
		component: cfg.Component,
		sessionID: cfg.SessionID,
		requestID: cfg.RequestID,
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *ConvoLogger) clone() *ConvoLogger {
	nl := *l
	return &nl
}

// WithComponent sets the logical component (engine, pipeline, tool, store).
func (l *ConvoLogger) WithComponent(c string) *ConvoLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithRequest attaches session and request identifiers.
func (l *ConvoLogger) WithRequest(sessionID, requestID string) *ConvoLogger {
	nl := l.clone()
	nl.sessionID = sessionID
	nl.requestID = requestID
	return nl
}

func (l *ConvoLogger) attrs(extra []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(extra)+3)
	if l.component != "" {
		out = append(out, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		out = append(out, slog.String("session_id", l.sessionID))
	}
	if l.requestID != "" {
		out = append(out, slog.String("request_id", l.requestID))
	}
	return append(out, extra...)
}

func (l *ConvoLogger) log(level slog.Level, min LogLevel, msg string, args []any) {
	if l.level > min {
		return
	}
	attrs := l.attrs(nil)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(k, args[i+1]))
		}
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *ConvoLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, LogLevelDebug, msg, args)
}

// Info logs at info level.
func (l *ConvoLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, LogLevelInfo, msg, args)
}

// Warn logs at warn level.
func (l *ConvoLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, LogLevelWarn, msg, args)
}

// Error logs at error level.
func (l *ConvoLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, LogLevelError, msg, args)
}

// LogStage records a pipeline stage boundary with its elapsed time.
func (l *ConvoLogger) LogStage(stage string, dur time.Duration, err error) {
	attrs := l.attrs([]slog.Attr{
		slog.String("stage", stage),
		slog.Duration("duration", dur),
		slog.Bool("success", err == nil),
	})
	level := slog.LevelDebug
	msg := "Stage completed"
	if err != nil {
		level = slog.LevelError
		msg = "Stage failed"
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogToolCall records execution details for a tool invocation.
func (l *ConvoLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	attrs := l.attrs([]slog.Attr{
		slog.String("tool_name", tool),
		slog.Duration("duration", dur),
		slog.Bool("success", success),
	})
	level := slog.LevelInfo
	msg := "Tool execution completed"
	if !success {
		level = slog.LevelError
		msg = "Tool execution failed"
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// WithRequestScope returns a copy of l carrying session and request
// identifiers. A ConvoLogger is cloned via WithRequest; any other Logger is
// wrapped so the identifiers ride along as leading attributes.
func WithRequestScope(l Logger, sessionID, requestID string) Logger {
	if cl, ok := l.(*ConvoLogger); ok {
		return cl.WithRequest(sessionID, requestID)
	}
	if _, ok := l.(NoOpLogger); ok {
		return l
	}
	return &scopedLogger{inner: l, scope: []any{"session_id", sessionID, "request_id", requestID}}
}

// scopedLogger prefixes every record of a plain Logger with fixed attributes.
type scopedLogger struct {
	inner Logger
	scope []any
}

func (s *scopedLogger) with(args []any) []any {
	out := make([]any, 0, len(s.scope)+len(args))
	out = append(out, s.scope...)
	return append(out, args...)
}

func (s *scopedLogger) Debug(msg string, args ...any) { s.inner.Debug(msg, s.with(args)...) }
func (s *scopedLogger) Info(msg string, args ...any)  { s.inner.Info(msg, s.with(args)...) }
func (s *scopedLogger) Warn(msg string, args ...any)  { s.inner.Warn(msg, s.with(args)...) }
func (s *scopedLogger) Error(msg string, args ...any) { s.inner.Error(msg, s.with(args)...) }

// RecordToolCall emits the structured tool-call record when l supports it,
// falling back to plain leveled logging otherwise.
func RecordToolCall(l Logger, tool string, dur time.Duration, success bool, err error) {
	if cl, ok := l.(*ConvoLogger); ok {
		cl.LogToolCall(tool, dur, success, err)
		return
	}
	if success {
		l.Info("tool.invoke.success", "tool", tool, "duration_ms", dur.Milliseconds())
		return
	}
	args := []any{"tool", tool, "duration_ms", dur.Milliseconds()}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error("tool.invoke.error", args...)
}

// RecordStage emits the structured stage record when l supports it, falling
// back to plain leveled logging otherwise.
func RecordStage(l Logger, stage string, dur time.Duration, err error) {
	if cl, ok := l.(*ConvoLogger); ok {
		cl.LogStage(stage, dur, err)
		return
	}
	if err != nil {
		l.Error("pipeline.stage.failed", "stage", stage, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.Debug("pipeline.stage.completed", "stage", stage, "duration_ms", dur.Milliseconds())
}
