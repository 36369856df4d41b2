package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, getLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, getLogLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, getLogLevel("verbose"))
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stock.log")

	logger := NewLogger(Config{Level: "info", File: FileConfig{Path: path, MaxSizeMB: 1}})
	logger.Debug("Dropped by level.")
	logger.Info("Stock file loaded.", zap.Int("items", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Stock file loaded."`)
	assert.Contains(t, string(data), `"items":3`)
	assert.NotContains(t, string(data), "Dropped by level.")
}
