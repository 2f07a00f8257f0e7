package internal

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_DevelopmentUsesText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "info")

	logger.Info("quota checked", "type", "chats")

	assert.Contains(t, buf.String(), "msg=\"quota checked\"")
	assert.Contains(t, buf.String(), "type=chats")
	assert.Contains(t, buf.String(), "service=cairn")
	assert.Contains(t, buf.String(), "env=development")
}

func TestNewLogger_ProductionUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "info")

	logger.Info("milestone reached", "milestone", 50)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "milestone reached", entry["msg"])
	assert.EqualValues(t, 50, entry["milestone"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "production", entry["env"])
	assert.NotContains(t, entry, "source", "source locations only at debug")
}

func TestNewLogger_ProductionDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "debug")

	logger.Debug("usage incremented")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "source")
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
		warnSeen  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"verbose", false, true, true},
		{" WARNING ", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, "development", tt.level)

			logger.Debug("d-line")
			logger.Info("i-line")
			logger.Warn("w-line")

			out := buf.String()
			assert.Equal(t, tt.debugSeen, strings.Contains(out, "d-line"))
			assert.Equal(t, tt.infoSeen, strings.Contains(out, "i-line"))
			assert.Equal(t, tt.warnSeen, strings.Contains(out, "w-line"))
		})
	}
}
