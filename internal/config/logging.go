package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	EnvLoggingFormat = "TAGGER_LOG_FORMAT"
	EnvLoggingLevel  = "TAGGER_LOG_LEVEL"
)

// LoggingConfig selects the slog handler and minimum level.
type LoggingConfig struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Logger builds a logger writing to w with the configured handler and level.
func (c *LoggingConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *LoggingConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *LoggingConfig) Merge(overlay *LoggingConfig) {
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
}

func (c *LoggingConfig) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *LoggingConfig) loadDefaults() {
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c *LoggingConfig) loadEnv() {
	if v := os.Getenv(EnvLoggingFormat); v != "" {
		c.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLoggingLevel); v != "" {
		c.Level = v
	}
}

func (c *LoggingConfig) validate() error {
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}
