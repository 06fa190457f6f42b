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
	CategoryFetch LogCategory = "fetch" // fetch lifecycle: attempts, outcomes
	CategoryError LogCategory = "error" // application errors and recovered panics
)

// Categories lists every category written by MultiLogger
var Categories = []LogCategory{CategoryFetch, CategoryError}

// ValidCategory reports whether c is a known category
func ValidCategory(c LogCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type categoryLogger struct {
	logger *zap.Logger
	file   *os.File
	level  zapcore.Level
}

// MultiLogger writes JSON event logs, one file per category per day
// (<category>-YYYYMMDD.log). Files roll over on the first write after midnight.
// Raw yt-dlp output goes to its own file, not through this logger.
type MultiLogger struct {
	config      MultiLoggerConfig
	mu          sync.RWMutex
	loggers     map[LogCategory]*categoryLogger
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

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{
		config:  config,
		loggers: make(map[LogCategory]*categoryLogger),
		now:     time.Now,
	}
	ml.currentDate = ml.now().Format("20060102")

	levels := map[LogCategory]zapcore.Level{
		CategoryFetch: level,
		CategoryError: zapcore.ErrorLevel,
	}
	for category, lvl := range levels {
		cl, err := ml.open(category, lvl)
		if err != nil {
			ml.closeAll()
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.loggers[category] = cl
	}

	return ml, nil
}

// open creates the JSON logger for a category writing to today's file
func (ml *MultiLogger) open(category LogCategory, level zapcore.Level) (*categoryLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	file, err := os.OpenFile(ml.pathFor(category, ml.currentDate), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	return &categoryLogger{logger: zap.New(core), file: file, level: level}, nil
}

func (ml *MultiLogger) pathFor(category LogCategory, date string) string {
	return filepath.Join(ml.config.LogsDir, fmt.Sprintf("%s-%s.log", category, date))
}

// rotate reopens every category file when the date has changed
func (ml *MultiLogger) rotate() {
	today := ml.now().Format("20060102")

	ml.mu.RLock()
	same := today == ml.currentDate
	ml.mu.RUnlock()
	if same {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if today == ml.currentDate {
		return
	}
	ml.currentDate = today
	for category, old := range ml.loggers {
		fresh, err := ml.open(category, old.level)
		if err != nil {
			continue
		}
		old.logger.Sync()
		old.file.Close()
		ml.loggers[category] = fresh
	}
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()
	if cl, ok := ml.loggers[category]; ok {
		return cl.logger
	}
	if cl, ok := ml.loggers[CategoryError]; ok {
		return cl.logger
	}
	return zap.NewNop()
}

// Fetch returns the fetch event logger
func (ml *MultiLogger) Fetch() *zap.Logger {
	return ml.GetLogger(CategoryFetch)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogFetchEvent logs a fetch lifecycle event with structured data
func (ml *MultiLogger) LogFetchEvent(event string, fields ...zap.Field) {
	ml.Fetch().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.closeAll()
}

func (ml *MultiLogger) closeAll() error {
	var lastErr error
	for category, cl := range ml.loggers {
		cl.logger.Sync()
		if err := cl.file.Close(); err != nil {
			lastErr = err
		}
		delete(ml.loggers, category)
	}
	return lastErr
}
