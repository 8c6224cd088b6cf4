// Package logx provides structured logging functionality
package logx

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger to provide a consistent interface.
// A scoped Logger resolves the global logger lazily, so scopes created at
// package init keep following reconfiguration done later by Init.
type Logger struct {
	scope string
}

var (
	mu     sync.RWMutex
	global *zap.Logger
)

func init() {
	lvl := zapcore.InfoLevel
	if IsLocalDev(os.Getenv("APP_ENV")) {
		lvl = zapcore.DebugLevel
	}
	l, err := build(lvl, "text")
	if err != nil {
		panic(err)
	}
	global = l
}

// IsLocalDev checks if the environment is local development
func IsLocalDev(appEnv string) bool {
	return appEnv == "local" || appEnv == "dev" || appEnv == "development"
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

func build(lvl zapcore.Level, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Development = false
	config.Sampling = nil
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	switch strings.ToLower(format) {
	case "json":
		config.Encoding = "json"
		config.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	default:
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	return config.Build(zap.AddCallerSkip(1))
}

// Init reconfigures the global logger. Existing scopes pick up the change.
func Init(level, format string) {
	l, err := build(parseLevel(level), format)
	if err != nil {
		panic(err)
	}
	mu.Lock()
	old := global
	global = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
}

// Replace swaps the global zap logger, returning a restore func. Used by tests
// that want to observe log output.
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

// L returns the global sugar logger
func L() *zap.SugaredLogger {
	return current().Sugar()
}

// GetLogger returns the underlying zap logger for advanced usage
func GetLogger() *zap.Logger {
	return current()
}

// GetScope returns a logger that tags every entry with scope=name.
func GetScope(name string) *Logger {
	return &Logger{scope: name}
}

// Sync flushes buffered entries of the global logger.
func Sync() error {
	return current().Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap returns the scoped zap logger.
func (l *Logger) Zap() *zap.Logger {
	z := current()
	if l.scope == "" {
		return z
	}
	return z.With(zap.String("scope", l.scope))
}

// Sugar returns the scoped sugar logger for key-value style logging
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.Zap().Sugar()
}

// Debug logs a debug message with structured fields
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Zap().Debug(msg, fields...)
}

// Info logs an info message with structured fields
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Zap().Info(msg, fields...)
}

// Warn logs a warning message with structured fields
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Zap().Warn(msg, fields...)
}

// Error logs an error message with structured fields
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Zap().Error(msg, fields...)
}
