package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, cfg LogConfig) *slog.Logger {
	t.Helper()
	logger, closer, err := NewLogger(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })
	return logger
}

func TestNewLogger(t *testing.T) {
	t.Run("creates text logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(t, LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

		logger.Info("test message", "key", "value")

		assert.Contains(t, buf.String(), "test message")
		assert.Contains(t, buf.String(), "key=value")
	})

	t.Run("creates JSON logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(t, LogConfig{Level: LogLevelInfo, Format: LogFormatJSON, Output: &buf})

		logger.Info("test message", "key", "value")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "test message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("respects log level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(t, LogConfig{Level: LogLevelWarn, Format: LogFormatText, Output: &buf})

		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")
		logger.Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("adds service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(t, LogConfig{
			Level:          LogLevelInfo,
			Format:         LogFormatJSON,
			Output:         &buf,
			ServiceName:    "test-kernel",
			ServiceVersion: "1.0.0",
		})

		logger.Info("test")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "test-kernel", entry["service"])
		assert.Equal(t, "1.0.0", entry["version"])
	})

	t.Run("adds correlation and operation from context", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(t, LogConfig{Level: LogLevelInfo, Format: LogFormatJSON, Output: &buf})

		ctx := WithCorrelationID(context.Background(), "corr-123")
		ctx = WithOperation(ctx, "boot")
		logger.InfoContext(ctx, "test message")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "corr-123", entry[CorrelationIDKey])
		assert.Equal(t, "boot", entry[OperationKey])
	})

	t.Run("fans out to a log file", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "kernel.log")
		logger, closer, err := NewLogger(LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
			Output: &buf,
			File:   path,
		})
		require.NoError(t, err)

		logger.Info("written twice", "module", "bar")
		require.NoError(t, closer.Close())

		assert.Contains(t, buf.String(), "module=bar")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
		assert.Equal(t, "written twice", entry["msg"])
		assert.Equal(t, "bar", entry["module"])
	})

	t.Run("fails on unwritable log file", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))

		_, _, err := NewLogger(LogConfig{File: filepath.Join(blocker, "kernel.log")})
		assert.Error(t, err)
	})
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{LogLevelInfo, slog.LevelInfo},
		{LogLevelWarn, slog.LevelWarn},
		{LogLevelError, slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, parseSlogLevel(tt.input))
		})
	}
}

func TestAttributeHandler(t *testing.T) {
	t.Run("WithAttrs returns new handler", func(t *testing.T) {
		base := slog.NewJSONHandler(&bytes.Buffer{}, nil)
		handler := &attributeHandler{handler: base, attrs: []slog.Attr{slog.String("default", "value")}}

		assert.NotEqual(t, handler, handler.WithAttrs([]slog.Attr{slog.String("extra", "attr")}))
	})

	t.Run("Enabled delegates to base handler", func(t *testing.T) {
		base := slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
		handler := &attributeHandler{handler: base}

		assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
		assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
	})
}

func TestWithCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.Len(t, correlationIDFromContext(ctx), 36)

	assert.Empty(t, correlationIDFromContext(context.Background()))
	assert.Empty(t, operationFromContext(context.Background()))
}

func TestTimer(t *testing.T) {
	t.Run("logs completion", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		err := TimeOperation(context.Background(), logger, "boot", func() error { return nil })

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "operation completed")
		assert.Contains(t, buf.String(), "operation=boot")
		assert.Contains(t, buf.String(), DurationKey)
	})

	t.Run("logs failure", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		timer := StartTimer(logger, "reload", "module", "bar")
		timer.Stop(context.Background(), errors.New("boom"))

		out := buf.String()
		assert.Contains(t, out, "operation failed")
		assert.Contains(t, out, "module=bar")
		assert.Contains(t, out, "error=boom")
	})

	t.Run("names the operation once when the context carries it", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(t, LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

		ctx := WithOperation(context.Background(), "start")
		require.NoError(t, TimeOperation(ctx, logger, "start", func() error { return nil }))

		assert.Equal(t, 1, strings.Count(buf.String(), "operation=start"))
	})
}
