package logger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return logger from context when present", func(t *testing.T) {
		expectedLogger := NewLogger(TestConfig())
		ctx := ContextWithLogger(t.Context(), expectedLogger)

		actualLogger := FromContext(ctx)

		require.NotNil(t, actualLogger)
		assert.Equal(t, expectedLogger, actualLogger)
	})

	t.Run("Should return default logger when no logger in context", func(t *testing.T) {
		logger := FromContext(t.Context())

		require.NotNil(t, logger)
		logger.Info("test message from default logger")
	})

	t.Run("Should return default logger when wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(t.Context(), LoggerCtxKey, "not a logger")

		logger := FromContext(ctx)

		require.NotNil(t, logger)
		logger.Info("test message from fallback logger")
	})
}

func TestLogLevel_ToCharmlogLevel(t *testing.T) {
	t.Run("Should convert all log levels to charm log levels correctly", func(t *testing.T) {
		testCases := []struct {
			level    LogLevel
			expected int
		}{
			{DebugLevel, -4},
			{InfoLevel, 0},
			{WarnLevel, 4},
			{ErrorLevel, 8},
			{DisabledLevel, 1000},
			{LogLevel("unknown"), 0},
		}
		for _, tc := range testCases {
			actual := tc.level.ToCharmlogLevel()
			assert.Equal(t, tc.expected, int(actual), "LogLevel %s", tc.level)
		}
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should create logger with provided config", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&Config{Level: InfoLevel, Output: &buf, TimeFormat: "15:04:05"})
		logger.Info("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("Should create logger with JSON formatting when enabled", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true, TimeFormat: "15:04:05"})
		logger.Info("test message", "entry", "Workflows/flow.json")
		output := buf.String()
		assert.Contains(t, output, "test message")
		assert.True(t, strings.HasPrefix(strings.TrimSpace(output), "{"))
		assert.Contains(t, output, "Workflows/flow.json")
	})

	t.Run("Should carry fields added with With", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewLogger(&Config{Level: InfoLevel, Output: &buf, TimeFormat: "15:04:05"})
		base.With("step", "inject-catch").Info("step applied")
		output := buf.String()
		assert.Contains(t, output, "step")
		assert.Contains(t, output, "inject-catch")
		assert.Contains(t, output, "step applied")
	})
}

func TestConfigDefaults(t *testing.T) {
	t.Run("Should provide correct test configuration", func(t *testing.T) {
		config := TestConfig()
		assert.Equal(t, DisabledLevel, config.Level)
		assert.Equal(t, io.Discard, config.Output)
		assert.False(t, config.JSON)
	})

	t.Run("Should detect test environment", func(t *testing.T) {
		assert.True(t, IsTestEnvironment())
	})
}

func TestLoggerLevels(t *testing.T) {
	t.Run("Should respect log level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&Config{Level: WarnLevel, Output: &buf, TimeFormat: "15:04:05"})
		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")
		logger.Error("error message")
		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.NotContains(t, output, "info message")
		assert.Contains(t, output, "warn message")
		assert.Contains(t, output, "error message")
	})

	t.Run("Should disable all logging when DisabledLevel is used", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&Config{Level: DisabledLevel, Output: &buf, TimeFormat: "15:04:05"})
		logger.Error("error message")
		assert.Empty(t, buf.String())
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("Should replace the default logger", func(t *testing.T) {
		prev := GetDefault()
		t.Cleanup(func() { defaultLogger = prev })

		l := SetupLogger("disabled", false, false)

		assert.Same(t, l, GetDefault())
	})

	t.Run("Should fall back to info for an unknown level", func(t *testing.T) {
		prev := GetDefault()
		t.Cleanup(func() { defaultLogger = prev })

		l := SetupLogger("verbose", true, false)

		require.NotNil(t, l)
	})
}
