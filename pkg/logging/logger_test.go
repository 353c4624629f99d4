package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dougsko/cwbeacon/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelInfo, ParseLogLevel("bogus"))
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestWriterLogger(t *testing.T) {
	t.Run("Level Filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWriterLogger(&buf, LevelWarn, "ON0BCN")

		logger.Info("beacon", "hidden")
		logger.Warn("beacon", "shown")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "[WARN] ON0BCN|beacon: shown")
	})

	t.Run("Sorted Fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWriterLogger(&buf, LevelDebug, "ON0BCN")

		logger.Debug("remote", "packet", Fields{"snr": 7.5, "rssi": -97})
		assert.Contains(t, buf.String(), "[rssi=-97 snr=7.5]")
	})

	t.Run("Structured", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWriterLogger(&buf, LevelDebug, "ON0BCN")
		logger.structured = true

		logger.Errorf("config", "save failed: %s", "disk")
		line := strings.TrimSpace(buf.String())
		assert.True(t, strings.HasPrefix(line, "{"))
		assert.Contains(t, line, `"component":"config"`)
		assert.Contains(t, line, `"message":"save failed: disk"`)
	})

	t.Run("SetLevel", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWriterLogger(&buf, LevelError, "")
		logger.SetLevel(LevelDebug)
		logger.Debugf("keyer", "letter %c", 'e')
		assert.Contains(t, buf.String(), "letter e")
	})
}

func TestNewLoggerWithFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{
		Level:      "info",
		File:       filepath.Join(dir, "logs", "beacon.log"),
		MaxSize:    1,
		MaxBackups: 1,
	}

	logger, err := NewLogger(cfg, "ON0BCN")
	require.NoError(t, err)

	logger.Info("main", "started")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ON0BCN|main: started")
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalLogger(NewWriterLogger(&buf, LevelInfo, "G"))
	defer SetGlobalLogger(nil)

	Infof("test", "value %d", 3)
	Debug("test", "dropped")
	assert.Contains(t, buf.String(), "G|test: value 3")
	assert.NotContains(t, buf.String(), "dropped")
}
