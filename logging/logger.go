// Package logging provides structured logging for semian-go, built on
// log/slog. It supports both text and JSON output and integrates with
// context.Context for request-scoped logging.
//
// Unlike a plain slog.Logger.With chain, attribute attachment is batched
// through Fields: an Acquire and a Register each touch several of the
// same handful of IPC-specific attributes (resource name, hex key,
// semaphore set id, pid, wait time), and Fields.Logger builds one child
// logger with only the attributes that are actually set, instead of
// stacking one .With call per attribute.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ctxKey is the context key for the logger.
type ctxKey struct{}

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
	// loggerMu protects defaultLogger.
	loggerMu sync.RWMutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds the logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level slog.Level
	// Format is the output format ("text" or "json").
	Format string
	// Output is the log output destination.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// NewLogger creates a new structured logger with the given configuration.
func NewLogger(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

// SetDefault sets the default global logger.
func SetDefault(logger *slog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the default global logger.
func Default() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// Fields is the set of IPC-coordination attributes semian-go's own code
// attaches to a log line. Zero-valued fields are omitted, except WaitMs,
// which is omitted only when negative, so a caller only fills in what it
// knows: Register has Resource, Key and SemID but no WaitMs; Acquire has
// Resource, SemID, PID and WaitMs.
type Fields struct {
	Resource string // resource name, e.g. "mysql_primary"
	Key      string // hex IPC key, as produced by key.Hex
	SemID    int    // kernel semaphore set id (0 if not yet created)
	PID      int    // process id involved in the event (0 to omit)
	WaitMs   int64  // time spent blocked in a semop, negative to omit
}

// Logger returns base with f's set fields (non-zero, or a non-negative
// WaitMs) attached in one With call.
func (f Fields) Logger(base *slog.Logger) *slog.Logger {
	var attrs []any
	if f.Resource != "" {
		attrs = append(attrs, slog.String("resource", f.Resource))
	}
	if f.Key != "" {
		attrs = append(attrs, slog.String("key", f.Key))
	}
	if f.SemID != 0 {
		attrs = append(attrs, slog.Int("semid", f.SemID))
	}
	if f.PID != 0 {
		attrs = append(attrs, slog.Int("pid", f.PID))
	}
	if f.WaitMs >= 0 {
		attrs = append(attrs, slog.Int64("wait_ms", f.WaitMs))
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}

// LogAcquire logs a ticket acquisition at a level chosen by how long the
// caller waited: at or above slowAcquire it is a Warn (the grace/backoff paths
// exist because this is expected to happen occasionally, not silently),
// otherwise an Info.
func LogAcquire(logger *slog.Logger, f Fields, slowAcquire time.Duration) {
	logger = f.Logger(logger)
	if time.Duration(f.WaitMs)*time.Millisecond >= slowAcquire {
		logger.Warn("ticket acquired after a slow wait")
		return
	}
	logger.Info("ticket acquired")
}

// ContextWithLogger returns a new context with the logger attached.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger from context.
// If no logger is found, returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// ParseLevel parses a log level string and returns the corresponding slog.Level.
// Valid values: "debug", "info", "warn", "error".
// Returns slog.LevelInfo for invalid values.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs an info message using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// InfoContext logs an info message using the logger from context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message using the logger from context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message using the logger from context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}

// DebugContext logs a debug message using the logger from context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

// String is a debug helper: a compact "resource=... key=..." form
// used by callers that want Fields in an error message rather than a
// log line.
func (f Fields) String() string {
	return fmt.Sprintf("resource=%s key=%s semid=%d", f.Resource, f.Key, f.SemID)
}
