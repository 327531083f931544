package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/crawlable/edge/internal/backend"
	"github.com/crawlable/edge/internal/config"
)

const (
	defaultMaxSize    = 100 // MB
	defaultMaxAge     = 30  // days
	defaultMaxBackups = 10
)

// fileRecord is one JSONL line in the local crawl log.
type fileRecord struct {
	Timestamp string `json:"timestamp"`
	backend.CrawlEvent
}

// FileEmitter appends crawl events as JSON lines to a rotated local file.
// It is the audit trail that survives backend outages.
type FileEmitter struct {
	writer *lumberjack.Logger
	logger *zap.Logger
}

func NewFileEmitter(cfg config.TelemetryFileConfig, logger *zap.Logger) (*FileEmitter, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create crawl log directory %s: %w", dir, err)
	}

	maxSize := cfg.Rotation.MaxSize
	if maxSize == 0 {
		maxSize = defaultMaxSize
	}
	maxAge := cfg.Rotation.MaxAge
	if maxAge == 0 {
		maxAge = defaultMaxAge
	}
	maxBackups := cfg.Rotation.MaxBackups
	if maxBackups == 0 {
		maxBackups = defaultMaxBackups
	}

	return &FileEmitter{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxAge:     maxAge,
			MaxBackups: maxBackups,
			Compress:   cfg.Rotation.Compress,
		},
		logger: logger,
	}, nil
}

func (f *FileEmitter) Emit(event backend.CrawlEvent) {
	record := fileRecord{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		CrawlEvent: event,
	}

	line, err := json.Marshal(record)
	if err != nil {
		f.logger.Warn("Failed to encode crawl event",
			zap.String("domain", event.Domain),
			zap.Error(err))
		return
	}

	if _, err := f.writer.Write(append(line, '\n')); err != nil {
		f.logger.Warn("Failed to write crawl event to log file",
			zap.String("domain", event.Domain),
			zap.Error(err))
	}
}

func (f *FileEmitter) Close() error {
	return f.writer.Close()
}
