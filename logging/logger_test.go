package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: &buf,
	})

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected output to contain 'key=value', got: %s", output)
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  slog.LevelInfo,
		Format: "json",
		Output: &buf,
	})

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("Expected JSON output to contain msg field, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Errorf("Expected JSON output to contain key field, got: %s", output)
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  slog.LevelWarn,
		Format: "text",
		Output: &buf,
	})

	logger.Info("info message")
	if strings.Contains(buf.String(), "info message") {
		t.Error("Info message should be filtered at Warn level")
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("Warn message should be logged at Warn level")
	}
}

func TestFields_LoggerOmitsZeroValues(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: slog.LevelInfo, Format: "text", Output: &buf})

	logger := Fields{Resource: "mysql_primary", WaitMs: -1}.Logger(base)
	logger.Info("registered")

	output := buf.String()
	if !strings.Contains(output, "resource=mysql_primary") {
		t.Errorf("expected resource attribute in output, got: %s", output)
	}
	for _, absent := range []string{"key=", "semid=", "pid=", "wait_ms="} {
		if strings.Contains(output, absent) {
			t.Errorf("expected zero-valued field %q to be omitted, got: %s", absent, output)
		}
	}
}

func TestFields_LoggerIncludesAllSetFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	logger := Fields{
		Resource: "mysql_primary",
		Key:      "0xdeadbeef",
		SemID:    42,
		PID:      12345,
		WaitMs:   7,
	}.Logger(base)
	logger.Info("ticket acquired")

	output := buf.String()
	for _, want := range []string{
		`"resource":"mysql_primary"`,
		`"key":"0xdeadbeef"`,
		`"semid":42`,
		`"pid":12345`,
		`"wait_ms":7`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestFields_LoggerNoAttrsReturnsBase(t *testing.T) {
	base := NewLogger(Config{Level: slog.LevelInfo, Format: "text"})
	logger := Fields{WaitMs: -1}.Logger(base)
	if logger != base {
		t.Error("Logger with no non-zero fields should return the base logger unchanged")
	}
}

func TestLogAcquire_SlowWaitLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: slog.LevelInfo, Format: "text", Output: &buf})

	LogAcquire(base, Fields{Resource: "mysql_primary", WaitMs: 500}, 100*time.Millisecond)

	output := buf.String()
	if !strings.Contains(output, "WARN") {
		t.Errorf("expected a slow acquire to log at WARN, got: %s", output)
	}
	if !strings.Contains(output, "wait_ms=500") {
		t.Errorf("expected wait_ms=500 in output, got: %s", output)
	}
}

func TestLogAcquire_FastWaitLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: slog.LevelInfo, Format: "text", Output: &buf})

	LogAcquire(base, Fields{Resource: "mysql_primary", WaitMs: 1}, 100*time.Millisecond)

	output := buf.String()
	if strings.Contains(output, "WARN") {
		t.Errorf("expected a fast acquire not to log at WARN, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("expected a fast acquire to log at INFO, got: %s", output)
	}
}

func TestFields_String(t *testing.T) {
	f := Fields{Resource: "mysql_primary", Key: "0xdeadbeef", SemID: 7}
	got := f.String()
	if !strings.Contains(got, "resource=mysql_primary") || !strings.Contains(got, "key=0xdeadbeef") || !strings.Contains(got, "semid=7") {
		t.Errorf("String() = %q, missing expected fields", got)
	}
}

func TestContextWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: &buf,
	})

	ctx := ContextWithLogger(context.Background(), logger)
	retrieved := FromContext(ctx)

	if retrieved != logger {
		t.Error("Expected to retrieve the same logger from context")
	}

	retrieved.Info("context message")
	if !strings.Contains(buf.String(), "context message") {
		t.Error("Expected message to be logged via context logger")
	}
}

func TestFromContext_Default(t *testing.T) {
	ctx := context.Background()
	logger := FromContext(ctx)

	if logger == nil {
		t.Error("Expected non-nil default logger")
	}
	if logger != Default() {
		t.Error("Expected default logger when no logger in context")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	newLogger := NewLogger(Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: &buf,
	})

	oldDefault := Default()
	SetDefault(newLogger)
	defer SetDefault(oldDefault)

	if Default() != newLogger {
		t.Error("SetDefault did not change the default logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestHelperFunctions(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  slog.LevelDebug,
		Format: "text",
		Output: &buf,
	})

	oldDefault := Default()
	SetDefault(logger)
	defer SetDefault(oldDefault)

	Info("info message")
	if !strings.Contains(buf.String(), "INFO") || !strings.Contains(buf.String(), "info message") {
		t.Errorf("Info() failed, output: %s", buf.String())
	}
	buf.Reset()

	Warn("warn message")
	if !strings.Contains(buf.String(), "WARN") || !strings.Contains(buf.String(), "warn message") {
		t.Errorf("Warn() failed, output: %s", buf.String())
	}
	buf.Reset()

	Error("error message")
	if !strings.Contains(buf.String(), "ERROR") || !strings.Contains(buf.String(), "error message") {
		t.Errorf("Error() failed, output: %s", buf.String())
	}
	buf.Reset()

	Debug("debug message")
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "debug message") {
		t.Errorf("Debug() failed, output: %s", buf.String())
	}
}

func TestContextHelperFunctions(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:  slog.LevelDebug,
		Format: "text",
		Output: &buf,
	})

	ctx := ContextWithLogger(context.Background(), logger)

	InfoContext(ctx, "info context message")
	if !strings.Contains(buf.String(), "info context message") {
		t.Errorf("InfoContext() failed, output: %s", buf.String())
	}
	buf.Reset()

	WarnContext(ctx, "warn context message")
	if !strings.Contains(buf.String(), "warn context message") {
		t.Errorf("WarnContext() failed, output: %s", buf.String())
	}
	buf.Reset()

	ErrorContext(ctx, "error context message")
	if !strings.Contains(buf.String(), "error context message") {
		t.Errorf("ErrorContext() failed, output: %s", buf.String())
	}
	buf.Reset()

	DebugContext(ctx, "debug context message")
	if !strings.Contains(buf.String(), "debug context message") {
		t.Errorf("DebugContext() failed, output: %s", buf.String())
	}
}
