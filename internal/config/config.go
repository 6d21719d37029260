// Package config loads the service configuration from TOML files and
// TAGGER_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/tagger/pkg/database"
	"github.com/JaimeStill/tagger/pkg/events"
	"github.com/JaimeStill/tagger/pkg/inference"
	"github.com/JaimeStill/tagger/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTaggerEnv             = "TAGGER_ENV"
	EnvTaggerShutdownTimeout = "TAGGER_SHUTDOWN_TIMEOUT"
	EnvTaggerVersion         = "TAGGER_VERSION"
)

var databaseEnv = &database.Env{
	URL:             "TAGGER_DB_URL",
	Host:            "TAGGER_DB_HOST",
	Port:            "TAGGER_DB_PORT",
	Name:            "TAGGER_DB_NAME",
	User:            "TAGGER_DB_USER",
	Password:        "TAGGER_DB_PASSWORD",
	SSLMode:         "TAGGER_DB_SSL_MODE",
	MaxOpenConns:    "TAGGER_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TAGGER_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TAGGER_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TAGGER_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Provider:         "TAGGER_STORAGE_PROVIDER",
	Container:        "TAGGER_STORAGE_CONTAINER",
	ConnectionString: "TAGGER_STORAGE_CONNECTION_STRING",
	ServiceURL:       "TAGGER_STORAGE_SERVICE_URL",
	Region:           "TAGGER_STORAGE_S3_REGION",
	Endpoint:         "TAGGER_STORAGE_S3_ENDPOINT",
	AccessKeyID:      "TAGGER_STORAGE_S3_ACCESS_KEY_ID",
	SecretAccessKey:  "TAGGER_STORAGE_S3_SECRET_ACCESS_KEY",
	UsePathStyle:     "TAGGER_STORAGE_S3_USE_PATH_STYLE",
}

var eventsEnv = &events.Env{
	Provider: "TAGGER_EVENTS_PROVIDER",
	Prefix:   "TAGGER_EVENTS_PREFIX",
	Addr:     "TAGGER_EVENTS_REDIS_ADDR",
	Password: "TAGGER_EVENTS_REDIS_PASSWORD",
	DB:       "TAGGER_EVENTS_REDIS_DB",
}

var inferenceEnv = &inference.Env{
	Provider:  "TAGGER_INFERENCE_PROVIDER",
	Model:     "TAGGER_INFERENCE_MODEL",
	BaseURL:   "TAGGER_INFERENCE_BASE_URL",
	AccountID: "TAGGER_INFERENCE_ACCOUNT_ID",
	APIToken:  "TAGGER_INFERENCE_API_TOKEN",
	Timeout:   "TAGGER_INFERENCE_TIMEOUT",
}

// Config is the root configuration for the tagger service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Database        database.Config  `toml:"database"`
	Storage         storage.Config   `toml:"storage"`
	Events          events.Config    `toml:"events"`
	Inference       inference.Config `toml:"inference"`
	Workflow        WorkflowConfig   `toml:"workflow"`
	API             APIConfig        `toml:"api"`
	Logging         LoggingConfig    `toml:"logging"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the TAGGER_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTaggerEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	return LoadFrom(BaseConfigFile)
}

// LoadFrom is Load with an explicit base config path. The overlay is looked
// up next to the working directory using OverlayConfigPattern.
func LoadFrom(base string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// DatabaseConfig finalizes a standalone database config from TAGGER_DB_*
// variables for tools that need only the database.
func DatabaseConfig() (*database.Config, error) {
	c := &database.Config{}
	if err := c.Finalize(databaseEnv); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Events.Merge(&overlay.Events)
	c.Inference.Merge(&overlay.Inference)
	c.Workflow.Merge(&overlay.Workflow)
	c.API.Merge(&overlay.API)
	c.Logging.Merge(&overlay.Logging)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Events.Finalize(eventsEnv); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Inference.Finalize(inferenceEnv); err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	if err := c.Workflow.Finalize(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Logging.Finalize(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvTaggerShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvTaggerVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvTaggerEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
