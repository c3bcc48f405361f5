package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradebook.log")
	logger, err := New(Config{Format: "json", Level: "warn", Output: []string{path}})
	require.NoError(t, err)

	logger.Info("transaction created", zap.String("transaction_id", "t1"))
	logger.Warn("amend rejected", zap.String("transaction_id", "t2"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "info is below the level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "amend rejected", entry["msg"])
	assert.Equal(t, "t2", entry["transaction_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_Console(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradebook.log")
	logger, err := New(Config{Format: "console", Output: []string{path}})
	require.NoError(t, err)
	logger.Debug("debug is below info")
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.NotContains(t, string(data), "debug is below info")
	assert.False(t, json.Valid(data))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}
