package config

import "autocode/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`                // debug, info, warn, error
	Format     string          `yaml:"format"`               // json, console
	File       string          `yaml:"file,omitempty"`       // empty = stderr
	Categories map[string]bool `yaml:"categories,omitempty"` // Per-category toggles
}

// ToLogging converts to the logging package's own config type.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		Categories: c.Categories,
	}
}
