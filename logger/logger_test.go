package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/logger"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := logger.New(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "roster.log")

	log, err := logger.New(config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	log.Info("materialized")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"materialized"`)
	assert.Contains(t, string(data), `"service_name":"court-roster"`)
}

func TestNew_DebugLevelConsole(t *testing.T) {
	log, err := logger.New(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
