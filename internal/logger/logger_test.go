package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/config"
)

func TestNewConsoleOnly(t *testing.T) {
	l, err := New(config.LogConfig{
		Level:   config.LogLevelInfo,
		Console: config.ConsoleLogConfig{Enabled: true, Format: config.LogFormatConsole},
	})
	require.NoError(t, err)

	l.Info("started")
	assert.NotNil(t, l.consoleLevel)
	assert.Nil(t, l.fileLevel)
}

func TestNewFileLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.log")

	l, err := New(config.LogConfig{
		Level: config.LogLevelDebug,
		File: config.FileLogConfig{
			Enabled: true,
			Path:    path,
			Format:  config.LogFormatJSON,
		},
	})
	require.NoError(t, err)

	l.Info("file entry", zap.String("key", "value"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file entry")
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestNewRequiresAnOutput(t *testing.T) {
	_, err := New(config.LogConfig{Level: config.LogLevelInfo})
	assert.Error(t, err)
}

func TestNewFileOutputRequiresPath(t *testing.T) {
	_, err := New(config.LogConfig{
		Level: config.LogLevelInfo,
		File:  config.FileLogConfig{Enabled: true},
	})
	assert.Error(t, err)
}

func TestPerOutputLevelOverridesGlobal(t *testing.T) {
	l, err := New(config.LogConfig{
		Level: config.LogLevelError,
		Console: config.ConsoleLogConfig{
			Enabled: true,
			Level:   config.LogLevelDebug,
			Format:  config.LogFormatText,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, l.consoleLevel.Level())
}

func TestEnsureInfoForShutdownRaisesQuietOutputs(t *testing.T) {
	l, err := New(config.LogConfig{
		Level:   config.LogLevelError,
		Console: config.ConsoleLogConfig{Enabled: true, Format: config.LogFormatText},
	})
	require.NoError(t, err)

	require.Equal(t, zap.ErrorLevel, l.consoleLevel.Level())
	l.EnsureInfoForShutdown()
	assert.Equal(t, zap.InfoLevel, l.consoleLevel.Level())
}

func TestEnsureInfoForShutdownKeepsVerboseOutputs(t *testing.T) {
	l, err := New(config.LogConfig{
		Level:   config.LogLevelDebug,
		Console: config.ConsoleLogConfig{Enabled: true, Format: config.LogFormatText},
	})
	require.NoError(t, err)

	l.EnsureInfoForShutdown()
	assert.Equal(t, zap.DebugLevel, l.consoleLevel.Level())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, parseLevel(config.LogLevelDebug))
	assert.Equal(t, zap.InfoLevel, parseLevel(config.LogLevelInfo))
	assert.Equal(t, zap.WarnLevel, parseLevel(config.LogLevelWarn))
	assert.Equal(t, zap.ErrorLevel, parseLevel(config.LogLevelError))
	assert.Equal(t, zap.InfoLevel, parseLevel("bogus"))
}
