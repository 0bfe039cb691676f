package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryAcquire LogCategory = "acquire" // Acquisition lifecycle events (JSON)
	CategoryError   LogCategory = "error"   // Application errors (JSON)
)

// Categories lists every category written by MultiLogger
var Categories = []LogCategory{CategoryAcquire, CategoryError}

// MultiLogger writes structured events into one dated file per category.
// Files roll over at the first write after midnight. A nil *MultiLogger
// discards everything.
type MultiLogger struct {
	config      MultiLoggerConfig
	mu          sync.RWMutex
	loggers     map[LogCategory]*zap.Logger
	files       []*os.File
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{config: config, now: time.Now}
	if err := ml.open(ml.now().Format("20060102")); err != nil {
		return nil, err
	}
	return ml, nil
}

// open builds the per-category loggers for date. Caller holds mu or owns ml.
func (ml *MultiLogger) open(date string) error {
	level, err := zapcore.ParseLevel(ml.config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	loggers := make(map[LogCategory]*zap.Logger, len(Categories))
	var files []*os.File
	for _, category := range Categories {
		categoryLevel := level
		if category == CategoryError {
			categoryLevel = zapcore.ErrorLevel
		}

		file, err := os.OpenFile(CategoryLogPath(ml.config.LogsDir, category, date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		files = append(files, file)
		loggers[category] = zap.New(zapcore.NewCore(structuredEncoder(), zapcore.AddSync(file), categoryLevel))
	}

	for _, f := range ml.files {
		f.Close()
	}
	ml.loggers = loggers
	ml.files = files
	ml.currentDate = date
	return nil
}

func structuredEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""
	return zapcore.NewJSONEncoder(encoderConfig)
}

// CategoryLogPath returns the file for a category on a YYYYMMDD date
func CategoryLogPath(logsDir string, category LogCategory, date string) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", category, date))
}

// emit runs write against the category logger. Writers share a read lock
// so a rollover can only close files nobody is writing to.
func (ml *MultiLogger) emit(category LogCategory, write func(*zap.Logger)) {
	if ml == nil {
		return
	}
	ml.rollover()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	logger, ok := ml.loggers[category]
	if !ok {
		logger = ml.loggers[CategoryError]
	}
	if logger != nil {
		write(logger)
	}
}

// rollover reopens the category files when the date has changed
func (ml *MultiLogger) rollover() {
	date := ml.now().Format("20060102")

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()
	if date == current {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.loggers != nil && date != ml.currentDate {
		// keep writing to the old files if the new ones cannot be opened
		_ = ml.open(date)
	}
}

// LogAcquireEvent logs an acquisition lifecycle event
func (ml *MultiLogger) LogAcquireEvent(event string, fields ...zap.Field) {
	ml.emit(CategoryAcquire, func(l *zap.Logger) { l.Info(event, fields...) })
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.emit(CategoryError, func(l *zap.Logger) { l.Error(msg, fields...) })
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	if ml == nil {
		return nil
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes every log file
func (ml *MultiLogger) Close() error {
	if ml == nil {
		return nil
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	for _, f := range ml.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	ml.files = nil
	ml.loggers = nil
	return lastErr
}
