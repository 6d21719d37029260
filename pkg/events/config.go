package events

import (
	"fmt"
	"os"
	"strconv"
)

// Providers supported by New.
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

// Config selects the event bus backend. The memory bus only reaches
// subscribers in the same process; redis is required when several server
// replicas share one journal.
type Config struct {
	Provider string      `toml:"provider"`
	Prefix   string      `toml:"prefix"`
	Redis    RedisConfig `toml:"redis"`
}

// RedisConfig holds go-redis connection options.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Provider string
	Prefix   string
	Addr     string
	Password string
	DB       string
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
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if overlay.Redis.Addr != "" {
		c.Redis.Addr = overlay.Redis.Addr
	}
	if overlay.Redis.Password != "" {
		c.Redis.Password = overlay.Redis.Password
	}
	if overlay.Redis.DB != 0 {
		c.Redis.DB = overlay.Redis.DB
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderMemory
	}
	if c.Prefix == "" {
		c.Prefix = "tagger"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = v
		}
	}
	if env.Prefix != "" {
		if v := os.Getenv(env.Prefix); v != "" {
			c.Prefix = v
		}
	}
	if env.Addr != "" {
		if v := os.Getenv(env.Addr); v != "" {
			c.Redis.Addr = v
		}
	}
	if env.Password != "" {
		if v := os.Getenv(env.Password); v != "" {
			c.Redis.Password = v
		}
	}
	if env.DB != "" {
		if v := os.Getenv(env.DB); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Redis.DB = n
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderMemory:
	case ProviderRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("redis db must be non-negative")
		}
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	return nil
}
