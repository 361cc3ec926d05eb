// Package gtlog provides the process-wide structured logger: an
// always-on zap logger available before any configuration is loaded,
// with named child loggers handed to each subsystem.
package gtlog

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

func init() {
	log = build()
}

func build() *zap.Logger {
	level := zapcore.InfoLevel
	if lvl := strings.ToLower(os.Getenv("GT_LOG_LEVEL")); lvl != "" {
		_ = level.UnmarshalText([]byte(lvl))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a bare, always-working logger rather than
		// leaving the process without logging at all.
		return zap.NewExample()
	}
	return logger
}

// Log returns the process-wide logger.
func Log() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Named returns a child logger scoped to component, e.g. "supervisor"
// or "peer".
func Named(component string) *zap.Logger {
	return Log().Named(component)
}

// Set replaces the process-wide logger. Exposed for tests that want
// to capture output with an observer core.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}
