package inference

import (
	"fmt"
	"os"
	"time"
)

// Providers supported by New.
const (
	ProviderCloudflare = "cloudflare"
	ProviderOpenAI     = "openai"
)

// Config selects the vision model endpoint.
type Config struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	AccountID string `toml:"account_id"`
	APIToken  string `toml:"api_token"`
	Timeout   string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Provider  string
	Model     string
	BaseURL   string
	AccountID string
	APIToken  string
	Timeout   string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
// Provider-specific defaults are applied after environment overrides so a
// provider chosen by env still receives its base URL and model.
func (c *Config) Finalize(env *Env) error {
	if c.Provider == "" {
		c.Provider = ProviderCloudflare
	}
	if env != nil {
		c.loadEnv(env)
	}
	c.loadDefaults()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.AccountID != "" {
		c.AccountID = overlay.AccountID
	}
	if overlay.APIToken != "" {
		c.APIToken = overlay.APIToken
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *Config) loadDefaults() {
	switch c.Provider {
	case ProviderCloudflare:
		if c.BaseURL == "" {
			c.BaseURL = "https://api.cloudflare.com/client/v4"
		}
		if c.Model == "" {
			c.Model = "@cf/llava-hf/llava-1.5-7b-hf"
		}
	case ProviderOpenAI:
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
		if c.Model == "" {
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
}

func (c *Config) loadEnv(env *Env) {
	overrides := []struct {
		key string
		dst *string
	}{
		{env.Provider, &c.Provider},
		{env.Model, &c.Model},
		{env.BaseURL, &c.BaseURL},
		{env.AccountID, &c.AccountID},
		{env.APIToken, &c.APIToken},
		{env.Timeout, &c.Timeout},
	}

	for _, o := range overrides {
		if o.key == "" {
			continue
		}
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderCloudflare:
		if c.AccountID == "" {
			return fmt.Errorf("account_id required for cloudflare")
		}
	case ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	if c.APIToken == "" {
		return fmt.Errorf("api_token required")
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid timeout: %q", c.Timeout)
	}
	return nil
}
