// Package logger builds the zap logger from config: a console core, an
// optional lumberjack-rotated file core, or both.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/crawlable/edge/internal/config"
)

// Logger wraps zap.Logger with runtime-switchable output levels.
type Logger struct {
	*zap.Logger
	consoleLevel *zap.AtomicLevel
	fileLevel    *zap.AtomicLevel
}

// New creates a logger from the log section of the service config.
func New(cfg config.LogConfig) (*Logger, error) {
	globalLevel := parseLevel(cfg.Level)

	var cores []zapcore.Core
	var consoleLevel, fileLevel *zap.AtomicLevel

	if cfg.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLevel(cfg.Console.Level, globalLevel))
		consoleLevel = &level
		cores = append(cores, zapcore.NewCore(
			newEncoder(cfg.Console.Format),
			zapcore.Lock(os.Stdout),
			consoleLevel,
		))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLevel(cfg.File.Level, globalLevel))
		fileLevel = &level
		cores = append(cores, zapcore.NewCore(
			newEncoder(cfg.File.Format),
			newFileWriter(cfg.File.Path, cfg.File.Rotation),
			fileLevel,
		))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	return &Logger{
		Logger:       zap.New(core),
		consoleLevel: consoleLevel,
		fileLevel:    fileLevel,
	}, nil
}

// NewDefault creates a console-only debug logger for early startup, before
// configuration has been loaded.
func NewDefault() (*Logger, error) {
	return New(config.LogConfig{
		Level: config.LogLevelDebug,
		Console: config.ConsoleLogConfig{
			Enabled: true,
			Format:  config.LogFormatConsole,
		},
	})
}

// EnsureInfoForShutdown raises outputs to at least INFO so the shutdown
// sequence stays visible even when the service runs at WARN or ERROR.
func (l *Logger) EnsureInfoForShutdown() {
	if l.consoleLevel != nil && l.consoleLevel.Level() > zap.InfoLevel {
		l.consoleLevel.SetLevel(zap.InfoLevel)
	}
	if l.fileLevel != nil && l.fileLevel.Level() > zap.InfoLevel {
		l.fileLevel.SetLevel(zap.InfoLevel)
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case config.LogLevelDebug:
		return zap.DebugLevel
	case config.LogLevelInfo:
		return zap.InfoLevel
	case config.LogLevelWarn:
		return zap.WarnLevel
	case config.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// resolveLevel returns the per-output level when set, otherwise the global.
func resolveLevel(outputLevel string, globalLevel zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLevel(outputLevel)
	}
	return globalLevel
}

func newEncoder(format string) zapcore.Encoder {
	if format == config.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == config.LogFormatText {
		// Plain text without color codes, for files
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func newFileWriter(path string, rotation config.RotationConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	})
}
