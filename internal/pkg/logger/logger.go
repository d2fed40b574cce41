// Package logger provides structured logging for the workflow engine.
//
// Uses zap with AtomicLevel so the level can change at runtime.
// JSON format for production, console for development.
//
// Import Path: dbaas.io/workflow/internal/pkg/logger
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global is the package-level logger instance.
	global      *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
	once        sync.Once
	mu          sync.RWMutex
)

// Init initializes the global logger.
// level: debug, info, warn, error
// format: json or console
func Init(level, format string) error {
	var initErr error
	once.Do(func() {
		if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
			initErr = fmt.Errorf("parse log level %q: %w", level, err)
			return
		}

		var cfg zap.Config
		switch format {
		case "console":
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		default:
			cfg = zap.NewProductionConfig()
		}
		cfg.Level = atomicLevel

		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			initErr = fmt.Errorf("build logger: %w", err)
			return
		}
		mu.Lock()
		global = l
		mu.Unlock()
	})
	return initErr
}

// Replace swaps the global logger and returns a function restoring the
// previous one. Tests use it with zaptest/observer to assert on log output.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prev := global
	global = l
	mu.Unlock()
	return func() {
		mu.Lock()
		global = prev
		mu.Unlock()
	}
}

// SetLevel dynamically changes the log level.
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

// GetLevel returns the current log level.
func GetLevel() zapcore.Level {
	return atomicLevel.Level()
}

// Level exposes the AtomicLevel; it implements http.Handler for
// GET/PUT level changes.
func Level() *zap.AtomicLevel {
	return &atomicLevel
}

// L returns the global logger. Library code may run before Init (tests,
// the CLI), so an uninitialized logger is a no-op rather than a panic.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return zap.NewNop()
	}
	return global
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Debug logs a message at DebugLevel.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs a message at InfoLevel.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs a message at WarnLevel.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs a message at ErrorLevel.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// With creates a child logger with additional fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Named returns a child logger scoped to a component (e.g. "acl", "pipeline").
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Sync()
}
