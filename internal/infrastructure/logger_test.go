package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterfinder/internal/config"
)

func readLastEntry(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestInitializeLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		CloseLogFile()
		slog.SetDefault(previous)
	})

	logFile := filepath.Join(t.TempDir(), "logs", "test.log")
	cfg := config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	}

	logger, err := InitializeLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.FileExists(t, logFile)
	assert.Same(t, logger, slog.Default())

	logger.Info("test message", "key", "value")
	require.NoError(t, CloseLogFile())

	entry := readLastEntry(t, logFile)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNewLoggerFormats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{"json", func(t *testing.T, out string) {
			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(out), &entry))
			assert.Equal(t, "hello", entry["msg"])
		}},
		{"text", func(t *testing.T, out string) {
			assert.Contains(t, out, "msg=hello")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: tt.format, Output: "console"}, &buf)
			require.NoError(t, err)

			logger.Info("hello")
			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestContextAttributeInjection(t *testing.T) {
	tests := []struct {
		name  string
		ctx   func() context.Context
		attrs []any
		want  map[string]string
	}{
		{
			name: "trace id",
			ctx:  func() context.Context { return WithTraceID(context.Background(), "test-trace-123") },
			want: map[string]string{"trace_id": "test-trace-123"},
		},
		{
			name: "search and family",
			ctx: func() context.Context {
				ctx := WithSearchID(context.Background(), "search-1")
				return WithFamily(ctx, "kalman")
			},
			want: map[string]string{"search_id": "search-1", "family": "kalman"},
		},
		{
			name:  "record attribute wins",
			ctx:   func() context.Context { return WithFamily(context.Background(), "kalman") },
			attrs: []any{slog.String("family", "moving_average")},
			want:  map[string]string{"family": "moving_average"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: "console"}, &buf)
			require.NoError(t, err)

			logger.InfoContext(tt.ctx(), "tagged", tt.attrs...)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			for k, v := range tt.want {
				assert.Equal(t, v, entry[k], k)
				assert.Equal(t, 1, strings.Count(buf.String(), `"`+k+`"`), "single %s attribute", k)
			}
		})
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.level))
		})
	}

	t.Run("below threshold is dropped", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
		require.NoError(t, err)

		logger.Info("hidden")
		assert.Empty(t, buf.String())
		logger.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestLoggerFileReplacement(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { CloseLogFile() })

	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	var console bytes.Buffer
	_, err := NewLogger(config.LoggingConfig{Output: "file", FilePath: first}, &console)
	require.NoError(t, err)
	logger, err := NewLogger(config.LoggingConfig{Output: "both", FilePath: second}, &console)
	require.NoError(t, err)

	logger.Info("search completed")
	require.NoError(t, CloseLogFile())
	require.NoError(t, CloseLogFile())

	assert.Equal(t, "search completed", readLastEntry(t, second)["msg"])
	assert.Contains(t, console.String(), "search completed")
	content, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestNewLoggerUnwritableFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := NewLogger(config.LoggingConfig{Output: "file", FilePath: filepath.Join(blocker, "app.log")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSearchContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SearchIDFromContext(ctx))
	assert.Empty(t, FamilyFromContext(ctx))

	ctx = WithFamily(WithSearchID(ctx, "abc"), "ema")
	assert.Equal(t, "abc", SearchIDFromContext(ctx))
	assert.Equal(t, "ema", FamilyFromContext(ctx))
	assert.Empty(t, GetTraceID(ctx))
}
