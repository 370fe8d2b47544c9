package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		envValue      string
		expectedLevel LogLevel
	}{
		{name: "trace level", envValue: "trace", expectedLevel: LevelTrace},
		{name: "debug level", envValue: "debug", expectedLevel: LevelDebug},
		{name: "info level", envValue: "info", expectedLevel: LevelInfo},
		{name: "warn level", envValue: "warn", expectedLevel: LevelWarn},
		{name: "warning alias", envValue: "warning", expectedLevel: LevelWarn},
		{name: "error level", envValue: "error", expectedLevel: LevelError},
		{name: "none level", envValue: "none", expectedLevel: LevelNone},
		{name: "mixed case debug", envValue: "DeBuG", expectedLevel: LevelDebug},
		{name: "empty string", envValue: "", expectedLevel: LevelInfo},
		{name: "invalid value", envValue: "loud", expectedLevel: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogLevel, tt.envValue)
			assert.Equal(t, tt.expectedLevel, GetLevelFromEnv())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel(" Error ")
	assert.True(t, ok)
	assert.Equal(t, LevelError, level)
	assert.Equal(t, "error", level.String())

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestWithKV(t *testing.T) {
	l := NewTestLogger()
	WithKV(l, "component", "cache").Info("hello %s", "world")
	entries := l.Entries()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "INFO", entries[0].Severity)
		assert.Equal(t, "cache", entries[0].Metadata["component"])
		assert.Equal(t, []interface{}{"world"}, entries[0].Arguments)
	}
}
