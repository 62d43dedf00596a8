// Package logger provides the process-wide logging facility, backed by zap.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.SugaredLogger
	once sync.Once
)

// Initialize sets up the global logger. Structured JSON output is the
// default; setting UNSTRUCTURED_LOGS=true switches to a human-readable
// console encoder for local development.
func Initialize() {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		if os.Getenv("UNSTRUCTURED_LOGS") == "true" {
			cfg.Encoding = "console"
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		if os.Getenv("DEBUG") == "true" {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		base, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fall back to a no-op logger rather than panicking at startup.
			base = zap.NewNop()
			fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		}
		log = base.Sugar()
	})
}

// ensure returns the global logger, initializing it on first use so that
// early callers (init functions, tests) never hit a nil logger.
func ensure() *zap.SugaredLogger {
	if log == nil {
		Initialize()
	}
	return log
}

// Sync flushes any buffered log entries.
func Sync() error {
	return ensure().Sync()
}

// Debug logs a message at debug level.
func Debug(args ...any) { ensure().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { ensure().Debugf(format, args...) }

// Info logs a message at info level.
func Info(args ...any) { ensure().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { ensure().Infof(format, args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { ensure().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { ensure().Warnf(format, args...) }

// Error logs a message at error level.
func Error(args ...any) { ensure().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { ensure().Errorf(format, args...) }

// Fatal logs a message at fatal level and exits.
func Fatal(args ...any) { ensure().Fatal(args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) { ensure().Fatalf(format, args...) }
