// Package logging provides structured logging using zap
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

// NewDefaultLogger creates a logger with default configuration using zap
func NewDefaultLogger() Logger {
	config := DefaultLogConfig()
	logger, err := NewZapLogger(config)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// NewRotatingWriter returns a size-rotated log file writer. Zero limits fall
// back to 100MB per file, 3 backups and 7 days of retention.
func NewRotatingWriter(cfg RotationConfig) io.WriteCloser {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultMaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaultMaxAgeDays
	}

	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  false,
	}
}

// InitGlobalLogger installs the process-wide logger. An empty rotation
// filename logs to stdout.
func InitGlobalLogger(levelName string, rotation RotationConfig) error {
	if levelName == "" {
		levelName = "INFO"
	}
	level := ParseLevel(levelName)

	config := LogConfig{
		Level:      level,
		TimeFormat: time.RFC3339,
	}
	if rotation.Filename != "" {
		config.Output = NewRotatingWriter(rotation)
	} else {
		config.Output = os.Stdout
	}

	logger, err := NewZapLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetGlobalLogger(logger)

	logger.Info("Logger initialized",
		Field{"level", level.String()},
		Field{"log_file", rotation.Filename},
	)
	return nil
}

// MustSync flushes any buffered log entries for zap loggers.
// Call before process exit.
func MustSync() {
	logger := GetGlobalLogger()
	if zapLogger, ok := logger.(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// Strings creates a string slice field
func Strings(key string, values []string) Field {
	return Field{Key: key, Value: values}
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
