package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warn"))
	// Unknown strings fall back to info.
	assert.Equal(t, LogLevelInfo, ParseLevel("chatty"))
}

func TestFeedMeshLogger_AttachesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:     LogLevelInfo,
		Format:    "json",
		Output:    &buf,
		Component: "session",
	})

	logger.WithSession("agent-a", "sess-1").Info("negotiation accepted", "remote_agent", "agent-b")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "negotiation accepted", entry["msg"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "agent-a", entry["agent_id"])
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "agent-b", entry["remote_agent"])
}

func TestFeedMeshLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	logger.Info("suppressed")
	assert.Zero(t, buf.Len())

	logger.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestNoOpLoggerSatisfiesInterface(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
}
