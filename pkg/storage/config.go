package storage

import (
	"fmt"
	"os"
	"strconv"
)

// Providers supported by New.
const (
	ProviderAzure  = "azure"
	ProviderS3     = "s3"
	ProviderMemory = "memory"
)

// Config selects a blob storage provider and holds its connection parameters.
// Container names the Azure container or the S3 bucket.
type Config struct {
	Provider  string      `toml:"provider"`
	Container string      `toml:"container"`
	Azure     AzureConfig `toml:"azure"`
	S3        S3Config    `toml:"s3"`
}

// AzureConfig authenticates with a connection string, or with
// DefaultAzureCredential against ServiceURL when no connection string is set.
type AzureConfig struct {
	ConnectionString string `toml:"connection_string"`
	ServiceURL       string `toml:"service_url"`
}

// S3Config falls back to the default AWS credential chain when no static keys
// are provided. Endpoint targets S3-compatible services such as MinIO.
type S3Config struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Provider         string
	Container        string
	ConnectionString string
	ServiceURL       string
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	UsePathStyle     string
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
	if overlay.Container != "" {
		c.Container = overlay.Container
	}
	if overlay.Azure.ConnectionString != "" {
		c.Azure.ConnectionString = overlay.Azure.ConnectionString
	}
	if overlay.Azure.ServiceURL != "" {
		c.Azure.ServiceURL = overlay.Azure.ServiceURL
	}
	if overlay.S3.Region != "" {
		c.S3.Region = overlay.S3.Region
	}
	if overlay.S3.Endpoint != "" {
		c.S3.Endpoint = overlay.S3.Endpoint
	}
	if overlay.S3.AccessKeyID != "" {
		c.S3.AccessKeyID = overlay.S3.AccessKeyID
	}
	if overlay.S3.SecretAccessKey != "" {
		c.S3.SecretAccessKey = overlay.S3.SecretAccessKey
	}
	if overlay.S3.UsePathStyle {
		c.S3.UsePathStyle = true
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderAzure
	}
	if c.Container == "" {
		c.Container = "images"
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}

func (c *Config) loadEnv(env *Env) {
	lookup(env.Provider, func(v string) { c.Provider = v })
	lookup(env.Container, func(v string) { c.Container = v })
	lookup(env.ConnectionString, func(v string) { c.Azure.ConnectionString = v })
	lookup(env.ServiceURL, func(v string) { c.Azure.ServiceURL = v })
	lookup(env.Region, func(v string) { c.S3.Region = v })
	lookup(env.Endpoint, func(v string) { c.S3.Endpoint = v })
	lookup(env.AccessKeyID, func(v string) { c.S3.AccessKeyID = v })
	lookup(env.SecretAccessKey, func(v string) { c.S3.SecretAccessKey = v })
	lookup(env.UsePathStyle, func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.S3.UsePathStyle = b
		}
	})
}

func (c *Config) validate() error {
	if c.Container == "" {
		return fmt.Errorf("container required")
	}

	switch c.Provider {
	case ProviderAzure:
		if c.Azure.ConnectionString == "" && c.Azure.ServiceURL == "" {
			return fmt.Errorf("azure: connection_string or service_url required")
		}
	case ProviderS3:
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			return fmt.Errorf("s3: access_key_id and secret_access_key must be set together")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}

	return nil
}

func lookup(key string, apply func(string)) {
	if key == "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		apply(v)
	}
}
