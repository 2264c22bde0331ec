// Package logging provides config-driven categorized logging for autocode.
// Every category is a named child of one zap logger; until Initialize is
// called all loggers are no-ops so library users see nothing by default.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot      Category = "boot"      // Setup, config loading
	CategoryAssistant Category = "assistant" // Generation loop
	CategoryCache     Category = "cache"     // Workspace cache reads/writes
	CategoryAgent     Category = "agent"     // LLM provider calls
	CategoryCompiler  Category = "compiler"  // Validation and interpretation
	CategoryReview    Category = "review"    // Interactive review, editor
	CategoryHistory   Category = "history"   // Generation ledger
	CategoryCLI       Category = "cli"       // Command line front end
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // console, json
	File       string          `yaml:"file"`   // empty = stderr
	Categories map[string]bool `yaml:"categories"`
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	cfg     Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds the process logger from cfg. Calling it again replaces
// the previous logger.
func Initialize(c Config) error {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if c.Format != "json" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zc.OutputPaths = []string{"stderr"}
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		zc.OutputPaths = []string{c.File}
	}

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	base = l
	cfg = c
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s file=%q", level, zc.Encoding, c.File)
	return nil
}

// SetLogger installs an externally built zap logger (the CLI and tests use this).
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	loggers = make(map[Category]*Logger)
	mu.Unlock()
}

// Zap returns the underlying zap logger.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Zap().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the filter are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if cfg.Categories == nil {
		return true
	}
	enabled, ok := cfg.Categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) the logger for a category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	enabled := IsCategoryEnabled(category)

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	z := zap.NewNop()
	if enabled {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Assistant(format string, args ...interface{})      { Get(CategoryAssistant).Info(format, args...) }
func AssistantDebug(format string, args ...interface{}) { Get(CategoryAssistant).Debug(format, args...) }
func AssistantWarn(format string, args ...interface{})  { Get(CategoryAssistant).Warn(format, args...) }

func Cache(format string, args ...interface{})      { Get(CategoryCache).Info(format, args...) }
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }
func CacheError(format string, args ...interface{}) { Get(CategoryCache).Error(format, args...) }

func Agent(format string, args ...interface{})      { Get(CategoryAgent).Info(format, args...) }
func AgentDebug(format string, args ...interface{}) { Get(CategoryAgent).Debug(format, args...) }
func AgentError(format string, args ...interface{}) { Get(CategoryAgent).Error(format, args...) }

func CompilerDebug(format string, args ...interface{}) { Get(CategoryCompiler).Debug(format, args...) }
func CompilerWarn(format string, args ...interface{})  { Get(CategoryCompiler).Warn(format, args...) }

func ReviewDebug(format string, args ...interface{}) { Get(CategoryReview).Debug(format, args...) }

func HistoryDebug(format string, args ...interface{}) { Get(CategoryHistory).Debug(format, args...) }
func HistoryWarn(format string, args ...interface{})  { Get(CategoryHistory).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
