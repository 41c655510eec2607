// Package logger provides the application's zap sugared logger. The TUI
// owns the terminal, so output goes to a file unless configured otherwise.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.SugaredLogger
	once   sync.Once
)

// Options configures the global logger. It is only honoured by the first
// call to Init.
type Options struct {
	// Level is a zap level name ("debug", "info", ...). LOG_LEVEL overrides it.
	Level string

	// File is the output path. Empty means stderr.
	File string

	// Production switches to the JSON encoder.
	Production bool
}

func build(opts Options) (*zap.Logger, error) {
	levelStr := opts.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		levelStr = env
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	if opts.Production || os.Getenv("ENVIRONMENT") == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	return cfg.Build()
}

// Init initializes the global logger once. Later calls are no-ops.
func Init(opts Options) error {
	var err error
	once.Do(func() {
		var zl *zap.Logger
		zl, err = build(opts)
		if err != nil {
			logger = zap.NewNop().Sugar()
			return
		}
		logger = zl.Sugar()
	})
	return err
}

// Get returns the shared logger, initializing a stderr logger if Init
// was never called.
func Get() *zap.SugaredLogger {
	once.Do(func() {
		zl, err := build(Options{Level: "info"})
		if err != nil {
			logger = zap.NewNop().Sugar()
			return
		}
		logger = zl.Sugar()
	})
	return logger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Close flushes buffered log entries.
func Close() error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil && !isBenignSyncError(err) {
		fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
		return err
	}
	return nil
}

// isBenignSyncError filters the error zap returns when syncing a
// terminal or pipe, which cannot be fsynced.
func isBenignSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl")
}

// MaskToken masks a bearer token for logging, keeping only the first and
// last three characters.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) < 10 {
		return strings.Repeat("*", len(token))
	}
	return token[:3] + "..." + token[len(token)-3:]
}
