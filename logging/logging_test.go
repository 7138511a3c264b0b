package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerInitialized(t *testing.T) {
	logger := GetLogger()
	require.NotNil(t, logger, "Logger should be initialized")
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"debug level", "debug"},
		{"info level", "info"},
		{"warn level", "warn"},
		{"warning alias", "warning"},
		{"error level", "error"},
		{"default for unknown", "invalid"},
		{"uppercase", "DEBUG"},
		{"mixed case", "InFo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, "text")
			require.NotNil(t, GetLogger())
		})
	}
}

func TestInitLoggerFormats(t *testing.T) {
	InitLogger("info", "json")
	require.NotNil(t, GetLogger())

	InitLogger("info", "text")
	require.NotNil(t, GetLogger())

	// Unknown formats fall back to text output
	InitLogger("info", "logfmt")
	require.NotNil(t, GetLogger())
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	InitLogger("info", "text")
	logger1 := GetLogger()
	logger2 := GetLogger()

	require.NotNil(t, logger1)
	require.Equal(t, logger1, logger2, "GetLogger should return the same instance")
}
