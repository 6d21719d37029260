package durable

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config tunes engine concurrency, step retries, and event polling.
type Config struct {
	MaxConcurrent int    `toml:"max_concurrent"`
	StepRetries   int    `toml:"step_retries"`
	RetryDelay    string `toml:"retry_delay"`
	MaxRetryDelay string `toml:"max_retry_delay"`
	PollInterval  string `toml:"poll_interval"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	MaxConcurrent string
	StepRetries   string
	RetryDelay    string
	MaxRetryDelay string
	PollInterval  string
}

// RetryDelayDuration returns RetryDelay as a time.Duration.
func (c *Config) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryDelay)
	return d
}

// MaxRetryDelayDuration returns MaxRetryDelay as a time.Duration.
func (c *Config) MaxRetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxRetryDelay)
	return d
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.MaxConcurrent != 0 {
		c.MaxConcurrent = overlay.MaxConcurrent
	}
	if overlay.StepRetries != 0 {
		c.StepRetries = overlay.StepRetries
	}
	if overlay.RetryDelay != "" {
		c.RetryDelay = overlay.RetryDelay
	}
	if overlay.MaxRetryDelay != "" {
		c.MaxRetryDelay = overlay.MaxRetryDelay
	}
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
}

func (c *Config) loadDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.StepRetries == 0 {
		c.StepRetries = 3
	}
	if c.RetryDelay == "" {
		c.RetryDelay = "1s"
	}
	if c.MaxRetryDelay == "" {
		c.MaxRetryDelay = "30s"
	}
	if c.PollInterval == "" {
		c.PollInterval = "5s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.MaxConcurrent != "" {
		if v := os.Getenv(env.MaxConcurrent); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxConcurrent = n
			}
		}
	}
	if env.StepRetries != "" {
		if v := os.Getenv(env.StepRetries); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.StepRetries = n
			}
		}
	}
	if env.RetryDelay != "" {
		if v := os.Getenv(env.RetryDelay); v != "" {
			c.RetryDelay = v
		}
	}
	if env.MaxRetryDelay != "" {
		if v := os.Getenv(env.MaxRetryDelay); v != "" {
			c.MaxRetryDelay = v
		}
	}
	if env.PollInterval != "" {
		if v := os.Getenv(env.PollInterval); v != "" {
			c.PollInterval = v
		}
	}
}

func (c *Config) validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	if c.StepRetries < 0 {
		return fmt.Errorf("step_retries must be non-negative")
	}
	for name, value := range map[string]string{
		"retry_delay":     c.RetryDelay,
		"max_retry_delay": c.MaxRetryDelay,
		"poll_interval":   c.PollInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 && name == "poll_interval" {
			return fmt.Errorf("poll_interval must be positive")
		}
	}
	return nil
}
