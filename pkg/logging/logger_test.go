package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/ftxcat/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, LevelWarn)

	l.Info("controller", "ignored")
	assert.Empty(t, buf.String())

	l.Warn("controller", "set not confirmed", map[string]interface{}{"verb": "FA"})
	out := buf.String()
	assert.Contains(t, out, "component=controller")
	assert.Contains(t, out, "verb=FA")
	assert.Contains(t, out, "set not confirmed")

	buf.Reset()
	l.WithFields(map[string]interface{}{"attempt": 2}).Errorf("transaction", "timeout on %s", "PC;")
	assert.Contains(t, buf.String(), "attempt=2")
	assert.Contains(t, buf.String(), "timeout on PC;")
}

func TestNewLoggerStructuredFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Logging.Level = "debug"
	cfg.Logging.File = filepath.Join(dir, "logs", "ftxd.log")
	cfg.Logging.Structured = true

	l, err := NewLogger(cfg)
	require.NoError(t, err)

	l.Debugf("hardware", "opened %s", "sim://")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "hardware", line["component"])
	assert.Equal(t, "opened sim://", line["msg"])
	assert.Equal(t, "debug", line["level"])
}

func TestGlobalWithFields(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	var buf bytes.Buffer
	SetGlobalLogger(NewWriterLogger(&buf, LevelDebug))

	log := WithFields(map[string]interface{}{"op": "set_power", "op_id": "42"})
	log.Errorf("engine", "failed to store operation: %v", "disk full")
	log.Infof("engine", "operation done in %dms", 3)

	out := buf.String()
	assert.Contains(t, out, "op=set_power")
	assert.Contains(t, out, "op_id=42")
	assert.Contains(t, out, "failed to store operation: disk full")
	assert.Contains(t, out, "operation done in 3ms")
}
