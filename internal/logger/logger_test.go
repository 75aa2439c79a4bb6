package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l, err := NewWithWriter(buf, "DEBUG", "text")
		require.NoError(t, err)

		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")

		output := buf.String()
		assert.Contains(t, output, "debug message")
		assert.Contains(t, output, "info message")
		assert.Contains(t, output, "warn message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf := new(bytes.Buffer)
		l, err := NewWithWriter(buf, "info", "text")
		require.NoError(t, err)

		l.Debug("debug message")
		l.Info("info message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.Contains(t, output, "info message")
	})
}

func TestSetLevel_AppliesToDerivedLoggers(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := NewWithWriter(buf, "WARN", "text")
	require.NoError(t, err)
	child := l.With("session_id", "abc")

	child.Info("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, l.SetLevel("DEBUG"))
	assert.Equal(t, slog.LevelDebug, l.Level())
	child.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "session_id=abc")

	assert.Error(t, l.SetLevel("LOUD"))
	assert.Equal(t, slog.LevelDebug, l.Level())
}

func TestJSONFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := NewWithWriter(buf, "INFO", "json")
	require.NoError(t, err)

	l.Info("session_started", "remote_ip", "127.0.0.1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session_started", entry["msg"])
	assert.Equal(t, "127.0.0.1", entry["remote_ip"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewWithWriter(new(bytes.Buffer), "INFO", "xml")
	assert.Error(t, err)

	_, err = NewWithWriter(new(bytes.Buffer), "chatty", "text")
	assert.Error(t, err)

	_, err = New(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "log.txt")})
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telnetd.log")

	l, err := New(Config{Level: "INFO", Format: "text", Output: path})
	require.NoError(t, err)
	l.Info("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestStdoutOutput(t *testing.T) {
	l, err := New(Config{Output: "stdout"})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
	assert.Equal(t, slog.LevelInfo, l.Level())
}
