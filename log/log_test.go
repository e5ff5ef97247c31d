package log

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

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFileAndStderr(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Dir: dir, Stderr: true, Writer: &buf})
	require.NoError(t, err)

	l.Info("rollout finished", "inits", 3)
	l.Debug("hidden")
	require.NoError(t, l.Close())

	assert.Contains(t, buf.String(), "rollout finished")
	assert.NotContains(t, buf.String(), "hidden")

	assert.Equal(t, filepath.Join(dir, "gridcast.slog"), l.LogFile)
	raw, err := os.ReadFile(l.LogFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "rollout finished", rec["msg"])
	assert.Equal(t, float64(3), rec["inits"])
}

func TestStderrOnly(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Writer: &buf})
	require.NoError(t, err)
	l.With("run", "abc").Debug("step")
	assert.Contains(t, buf.String(), "run=abc")
	assert.Empty(t, l.LogFile)
	assert.NoError(t, l.Close())
}
